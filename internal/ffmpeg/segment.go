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

// DecodeStream decodes audio read from r (a network stream or any other
// reader, not necessarily a local file) to mono 32-bit float PCM at
// sampleRate. Used by the broadcasting engine, which consumes tracks
// through the Library Source Adapter's OpenStream rather than a local path.
func (e *Encoder) DecodeStream(ctx context.Context, r io.Reader, sampleRate int) (embedding.PCM, error) {
	args := []string{
		"-i", "pipe:0",
		"-f", "f32le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdin = r

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
				slog.Debug("ffmpeg decode stream", "output", string(buf[:n]))
			}
		}
	}()

	raw, copyErr := io.ReadAll(stdout)
	waitErr := cmd.Wait()

	if copyErr != nil {
		return nil, fmt.Errorf("pcm stream decode error: %w", copyErr)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg decode process error: %w", waitErr)
	}

	return bytesToFloat32(raw), nil
}

// EncodeTSSegment encodes a chunk of mono 32-bit float PCM at sampleRate
// into a self-contained MPEG-TS segment carrying AAC-LC audio, suitable for
// serving directly from an HLS media playlist. Each segment is independently
// decodable, which is what lets the broadcasting engine evict and re-fetch
// segments without touching neighboring ones.
func (e *Encoder) EncodeTSSegment(ctx context.Context, pcm embedding.PCM, sampleRate int, bitrateKbps int) ([]byte, error) {
	args := []string{
		"-f", "f32le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-i", "pipe:0",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		"-f", "mpegts",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdin = newFloatReader(pcm)

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
				slog.Debug("ffmpeg encode segment", "output", string(buf[:n]))
			}
		}
	}()

	out, copyErr := io.ReadAll(stdout)
	waitErr := cmd.Wait()

	if copyErr != nil {
		return nil, fmt.Errorf("segment encode read error: %w", copyErr)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg segment encode error: %w", waitErr)
	}
	return out, nil
}

// floatReader streams a PCM buffer as little-endian f32 bytes without
// materializing the whole byte slice up front.
type floatReader struct {
	raw []byte
	pos int
}

func newFloatReader(pcm embedding.PCM) *floatReader {
	raw := make([]byte, len(pcm)*4)
	for i, v := range pcm {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], math.Float32bits(v))
	}
	return &floatReader{raw: raw}
}

func (f *floatReader) Read(p []byte) (int, error) {
	if f.pos >= len(f.raw) {
		return 0, io.EOF
	}
	n := copy(p, f.raw[f.pos:])
	f.pos += n
	return n, nil
}
