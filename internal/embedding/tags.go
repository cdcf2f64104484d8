package embedding

import (
	"log/slog"
	"os"

	"github.com/dhowden/tag"
)

// MetadataSink receives tag-derived genre/year metadata, backfilled only
// where the library source's own record left the field blank.
type MetadataSink interface {
	ApplyTagMetadata(trackID string, genres []string, year int)
}

// enrichFromTags opens the audio file at path and, if it carries readable
// ID3/tag metadata, forwards any genre or year it finds to sink. Unreadable
// or tagless files are silently skipped: this is a best-effort backfill on
// top of the source's own metadata, not a requirement for embedding to
// succeed.
func enrichFromTags(sink MetadataSink, trackID, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		slog.Debug("embedding: no tag metadata available", "track_id", trackID, "path", path, "error", err)
		return
	}

	var genres []string
	if g := m.Genre(); g != "" {
		genres = []string{g}
	}
	sink.ApplyTagMetadata(trackID, genres, m.Year())
}
