package ffmpeg

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"

	"github.com/broadcast-engine/stationcast/internal/embedding"
)

// DecodePCM decodes inputFile to mono 32-bit float PCM at sampleRate,
// reusing the same process-piping idiom as DecodeStream. Used by the
// embedding pipeline ahead of mel-spectrogram extraction.
func (e *Encoder) DecodePCM(ctx context.Context, inputFile string, sampleRate int) (embedding.PCM, error) {
	args := []string{
		"-i", inputFile,
		"-f", "f32le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := stderr.Read(buf)
			if err != nil {
				return
			}
			if n > 0 {
				slog.Debug("ffmpeg decode", "output", string(buf[:n]))
			}
		}
	}()

	raw, copyErr := io.ReadAll(stdout)
	waitErr := cmd.Wait()

	if copyErr != nil {
		return nil, fmt.Errorf("pcm decode read error: %w", copyErr)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg decode process error: %w", waitErr)
	}

	return bytesToFloat32(raw), nil
}

func bytesToFloat32(raw []byte) embedding.PCM {
	n := len(raw) / 4
	out := make(embedding.PCM, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// PCMDecoder adapts Encoder to the embedding package's Decoder interface.
type PCMDecoder struct {
	SampleRate int
}

// DecodeMono implements embedding.Decoder.
func (d PCMDecoder) DecodeMono(ctx context.Context, path string) (embedding.PCM, error) {
	e := NewEncoder("192k", fmt.Sprintf("%d", d.SampleRate), "1")
	return e.DecodePCM(ctx, path, d.SampleRate)
}
