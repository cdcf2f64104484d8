package broadcast

import (
	"fmt"
	"math"

	"github.com/broadcast-engine/stationcast/internal/errs"
	"github.com/mogiioin/hls-m3u8/m3u8"
)

// BuildManifest renders the station's current segment window as a live HLS
// media playlist using a real HLS playlist-writer library rather than
// hand-formatted string concatenation. segT is the target
// segment duration used for EXT-X-TARGETDURATION.
func BuildManifest(w *Window, segT float64) (string, error) {
	segments, floor := w.Snapshot()
	if len(segments) == 0 {
		return "", errs.New(errs.KindNotYet, "no segments produced yet")
	}

	capacity := uint(len(segments)) + 1
	playlist, err := m3u8.NewMediaPlaylist(uint(len(segments)), capacity)
	if err != nil {
		return "", fmt.Errorf("failed to build media playlist: %w", err)
	}
	playlist.SeqNo = floor
	playlist.SetTargetDuration(uint(math.Ceil(segT)))

	for _, seg := range segments {
		uri := fmt.Sprintf("segment/%d.ts", seg.Seq)
		if err := playlist.Append(uri, seg.Duration.Seconds(), ""); err != nil {
			return "", fmt.Errorf("failed to append segment %d: %w", seg.Seq, err)
		}
	}

	return playlist.Encode().String(), nil
}
