package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"liveclass/internal/attendance"
	"liveclass/internal/classes"
	"liveclass/internal/roster"
)

// badRequest marks request decoding failures.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

var errForbidden = errors.New("not allowed to act for this student")

func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, classes.ErrNotFound),
		errors.Is(err, classes.ErrNoActiveClass),
		errors.Is(err, attendance.ErrNotFound),
		errors.Is(err, attendance.ErrClassNotActive),
		errors.Is(err, roster.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, classes.ErrInvalidDuration),
		errors.Is(err, classes.ErrInvalidProgram),
		errors.Is(err, classes.ErrTitleRequired),
		errors.Is(err, classes.ErrStartRequired),
		errors.Is(err, attendance.ErrClassRequired),
		errors.Is(err, attendance.ErrStudentRequired),
		errors.Is(err, roster.ErrInvalidStudent):
		return http.StatusBadRequest
	case errors.Is(err, classes.ErrNotEditable),
		errors.Is(err, classes.ErrTerminal),
		errors.Is(err, classes.ErrConcurrentUpdate),
		errors.Is(err, attendance.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"message": ...}. Unexpected errors are logged and hidden.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}
