// Package embedding implements the Audio Embedding Service: the
// preprocessing pipeline, batch worker, persistence, and nearest-neighbor
// queries over fixed-dimension track embeddings.
package embedding

import "context"

// Model-contract constants. These are fixed by the external model file, not
// a design choice; an implementer obtains them from the model's
// documentation and must not vary them. The values below are the ones
// this engine's configured model was built against.
const (
	// Dimensions is D, the embedding vector length.
	Dimensions = 100
	// WindowSeconds is the centered audio window fed to the model.
	WindowSeconds = 8
	// MelBins is M, the number of mel filterbank channels.
	MelBins = 64
	// MelFrames is T, the number of time frames per spectrogram.
	MelFrames = 256
	// SampleRate is the PCM rate the model expects its input windowed at.
	SampleRate = 22050
)

// PCM is a single channel of decoded audio samples at SampleRate.
type PCM []float32

// Model is the injected interface over the external audio-encoder model,
// treated as a pure function with cost, latency, and failure semantics.
// ModelVersion identifies the production version so the index can detect
// stale embeddings.
type Model interface {
	ModelVersion() string
	// Infer consumes a MelBins x MelFrames spectrogram (flattened
	// row-major) and returns a raw, not-yet-normalized D-vector.
	Infer(ctx context.Context, spectrogram []float32) ([]float32, error)
}

// Decoder turns an on-disk audio file into mono PCM at SampleRate. It is
// backed by shelling out to ffmpeg, the same process-piping idiom the
// ffmpeg package already uses for stream transcoding.
type Decoder interface {
	DecodeMono(ctx context.Context, path string) (PCM, error)
}
