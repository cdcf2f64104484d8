package embedding

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"

	"github.com/broadcast-engine/stationcast/internal/errs"
)

// ExecModel adapts an external model executable to the Model interface,
// reusing the same subprocess-piping idiom the ffmpeg package uses for
// transcoding: the spectrogram goes in on stdin as raw little-endian
// float32, the D-vector comes back the same way on stdout. The model
// binary's exact inference logic is outside this engine's concern; it is
// treated as a fixed external contract per Dimensions/MelBins/MelFrames.
type ExecModel struct {
	path    string
	version string
}

// NewExecModel builds an ExecModel that shells out to the executable at
// path, tagging every embedding it produces with version.
func NewExecModel(path, version string) *ExecModel {
	return &ExecModel{path: path, version: version}
}

// ModelVersion implements Model.
func (m *ExecModel) ModelVersion() string { return m.version }

// Infer implements Model by piping spectrogram to the model executable and
// parsing its raw float32 output.
func (m *ExecModel) Infer(ctx context.Context, spectrogram []float32) ([]float32, error) {
	input := make([]byte, len(spectrogram)*4)
	for i, v := range spectrogram {
		binary.LittleEndian.PutUint32(input[i*4:], math.Float32bits(v))
	}

	cmd := exec.CommandContext(ctx, m.path)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errs.Wrap(errs.KindModelError,
			fmt.Sprintf("model process failed: %s", stderr.String()), err)
	}

	raw := stdout.Bytes()
	if len(raw)%4 != 0 {
		return nil, errs.New(errs.KindModelError, "model output is not a whole number of float32 values")
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}
