package broadcast

import "testing"

func TestWindow_Get_NotYetBeforeAnyPublish(t *testing.T) {
	w := NewWindow(3)
	if _, status := w.Get(0); status != SegmentNotYet {
		t.Errorf("status = %v, want not_yet", status)
	}
}

func TestWindow_Put_EvictsBeyondSize(t *testing.T) {
	w := NewWindow(3)
	for seq := uint64(0); seq < 5; seq++ {
		w.Put(&Segment{Seq: seq})
	}

	if _, status := w.Get(0); status != SegmentGone {
		t.Errorf("seq 0 status = %v, want gone", status)
	}
	if _, status := w.Get(1); status != SegmentGone {
		t.Errorf("seq 1 status = %v, want gone", status)
	}
	if seg, status := w.Get(4); status != SegmentReady || seg.Seq != 4 {
		t.Errorf("seq 4 = %+v, %v, want ready", seg, status)
	}
}

func TestWindow_Get_NotYetAheadOfHead(t *testing.T) {
	w := NewWindow(3)
	w.Put(&Segment{Seq: 0})
	if _, status := w.Get(5); status != SegmentNotYet {
		t.Errorf("status = %v, want not_yet", status)
	}
}

func TestWindow_Snapshot_ReturnsAscendingOrderAndFloor(t *testing.T) {
	w := NewWindow(3)
	for seq := uint64(0); seq < 4; seq++ {
		w.Put(&Segment{Seq: seq})
	}
	segments, floor := w.Snapshot()
	if floor != 1 {
		t.Errorf("floor = %d, want 1", floor)
	}
	if len(segments) != 3 {
		t.Fatalf("len(segments) = %d, want 3", len(segments))
	}
	for i, seg := range segments {
		if seg.Seq != uint64(1+i) {
			t.Errorf("segments[%d].Seq = %d, want %d", i, seg.Seq, 1+i)
		}
	}
}

func TestWindow_Reset_ClearsEverything(t *testing.T) {
	w := NewWindow(3)
	w.Put(&Segment{Seq: 0})
	w.Reset()
	if _, status := w.Get(0); status != SegmentNotYet {
		t.Errorf("status after reset = %v, want not_yet", status)
	}
}
