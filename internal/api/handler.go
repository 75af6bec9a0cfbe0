// Package api provides HTTP handlers for the interview API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/math-interviewer/internal/interview"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFor maps interview errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, interview.ErrInvalidSessionID), errors.Is(err, interview.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, interview.ErrInterviewComplete):
		return http.StatusConflict
	case errors.Is(err, interview.ErrSessionReset):
		return http.StatusGone
	case errors.Is(err, interview.ErrNoReport):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error. Unexpected errors are logged and
// reported without their detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}

// attachment writes body as a download named filename.
func attachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
