package ffmpeg

// Encoder is the handle the broadcasting engine holds for transcoding;
// DecodeStream and EncodeTSSegment (segment.go) are its methods. Sample
// rate and bitrate are passed per call, from the broadcasting engine's
// Config, rather than read off the struct.
type Encoder struct {
	bitrate    string
	sampleRate string
	channels   string
}

func NewEncoder(bitrate, sampleRate, channels string) *Encoder {
	return &Encoder{
		bitrate:    bitrate,
		sampleRate: sampleRate,
		channels:   channels,
	}
}
