package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/broadcast-engine/stationcast/internal/errs"
)

// statusForKind maps a named error kind to the HTTP status a listener
// or admin client should see, so handlers never sniff error text.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation, errs.KindEmptyPlaylist:
		return http.StatusBadRequest
	case errs.KindNotFound, errs.KindFileNotFound:
		return http.StatusNotFound
	case errs.KindSlugTaken, errs.KindNotActive, errs.KindAlreadyActive, errs.KindStationDegraded:
		return http.StatusConflict
	case errs.KindSourceUnavailable:
		return http.StatusServiceUnavailable
	case errs.KindSourceUnauthorized:
		return http.StatusBadGateway
	case errs.KindInsufficientSeeds:
		return http.StatusUnprocessableEntity
	case errs.KindGone:
		return http.StatusGone
	case errs.KindNotYet:
		return http.StatusTooEarly
	case errs.KindCapacity:
		return http.StatusServiceUnavailable
	case errs.KindDecodeError, errs.KindModelError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func errStationNotFound(id string) error {
	return errs.New(errs.KindNotFound, "no station with id "+id)
}

func errValidation(message string) error {
	return errs.New(errs.KindValidation, message)
}

// writeError shapes every error response the same way. Kinds whose cause
// chain could carry a source hostname, credential detail, or model internal
// get a fixed generic message instead of err.Error() so listener-facing
// failures never reveal credentials or library source hostnames.
func writeError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	message := err.Error()
	switch kind {
	case errs.KindSourceUnavailable:
		message = "the upstream audio source is temporarily unavailable"
	case errs.KindSourceUnauthorized:
		message = "the upstream audio source rejected our credentials"
	case errs.KindModelError:
		message = "the audio model failed"
	case errs.KindInternal:
		message = "internal error"
	}
	c.JSON(statusForKind(kind), gin.H{
		"status": "error",
		"error":  message,
		"kind":   string(kind),
	})
}
