package embedding

import (
	"context"
	"math"
	"os"
	"testing"
)

type fixedDecoder struct {
	pcm PCM
	err error
}

func (d fixedDecoder) DecodeMono(ctx context.Context, path string) (PCM, error) {
	return d.pcm, d.err
}

type fixedModel struct {
	vector  []float32
	version string
	err     error
}

func (m fixedModel) ModelVersion() string { return m.version }

func (m fixedModel) Infer(ctx context.Context, spectrogram []float32) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

func rawVector(n int, fill float32) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestPipeline_Process_MissingFileIsFileNotFound(t *testing.T) {
	decoder := fixedDecoder{pcm: make(PCM, WindowSeconds*SampleRate)}
	model := fixedModel{vector: rawVector(Dimensions, 3), version: "v1"}

	p := NewPipeline(decoder, model)
	if _, _, err := p.Process(context.Background(), "/nonexistent/path/track.flac"); err == nil {
		t.Fatal("expected an error for a nonexistent path")
	}
}

func TestPipeline_Process_RejectsWrongDimension(t *testing.T) {
	f := writeTempFile(t)
	decoder := fixedDecoder{pcm: make(PCM, WindowSeconds*SampleRate)}
	model := fixedModel{vector: rawVector(Dimensions-1, 1), version: "v1"}

	p := NewPipeline(decoder, model)
	if _, _, err := p.Process(context.Background(), f); err == nil {
		t.Fatal("expected an error for a wrong-dimension embedding")
	}
}

func TestPipeline_Process_Success(t *testing.T) {
	f := writeTempFile(t)
	decoder := fixedDecoder{pcm: make(PCM, WindowSeconds*SampleRate)}
	model := fixedModel{vector: rawVector(Dimensions, 3), version: "v2"}

	p := NewPipeline(decoder, model)
	vector, version, err := p.Process(context.Background(), f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if version != "v2" {
		t.Errorf("version = %q, want v2", version)
	}
	if norm := Norm(vector); math.Abs(norm-1) > 1e-3 {
		t.Errorf("‖v‖ = %v, want within 1e-3 of 1", norm)
	}
}

func TestCenterWindow_PadsShortClips(t *testing.T) {
	short := PCM{1, 2, 3}
	windowed := centerWindow(short, 9)
	if len(windowed) != 9 {
		t.Fatalf("len = %d, want 9", len(windowed))
	}
}

func TestCenterWindow_TrimsLongClips(t *testing.T) {
	long := make(PCM, 100)
	windowed := centerWindow(long, 40)
	if len(windowed) != 40 {
		t.Fatalf("len = %d, want 40", len(windowed))
	}
}

func writeTempFile(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "track-*.bin")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("fake audio bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return f.Name()
}
