package control

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corestate/statecraft/internal/errs"
)

// statusFor maps the error taxonomy onto an HTTP status so handlers
// don't reinvent mapping logic individually.
func statusFor(err error) int {
	se, ok := err.(*errs.Error)
	if !ok {
		return http.StatusInternalServerError
	}
	switch se.Kind {
	case errs.KindInvalidStructure, errs.KindUnhandledOutcome:
		return http.StatusBadRequest
	case errs.KindMissingLibrary:
		return http.StatusNotFound
	case errs.KindPersistenceFault:
		return http.StatusInternalServerError
	case errs.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
