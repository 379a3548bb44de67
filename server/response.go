package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes a JSON request body. Malformed bodies are invalid requests.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid request body"), errors.ErrInvalidRequest)
	}
	return nil
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case errors.IsCapacityError(err):
		return http.StatusTooManyRequests
	case errors.IsServiceUnavailableError(err):
		return http.StatusServiceUnavailable
	case errors.IsGenerationFailedError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure maps err to a status and writes {"error": ...}, adding
// "field" for validation failures. Store and unexpected failures get an
// opaque message; their details reach the log only.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error, action string) {
	status := statusFor(err)
	log := logger.LoggerFromContext(r.Context(), s.logger)
	body := map[string]string{}

	switch status {
	case http.StatusBadRequest:
		var fe *errors.FieldError
		if errors.As(err, &fe) {
			body["error"] = fe.Error()
			body["field"] = fe.Field
		} else {
			body["error"] = err.Error()
		}
	case http.StatusServiceUnavailable:
		body["error"] = "AI services unavailable"
	case http.StatusBadGateway:
		body["error"] = "generation failed"
	case http.StatusInternalServerError:
		body["error"] = "failed to " + action
	default:
		body["error"] = err.Error()
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed: "+action,
			logger.FieldHTTPStatus, status,
			logger.FieldError, err,
			"details", errors.FlattenDetails(err))
	} else {
		log.Infow("Request rejected: "+action,
			logger.FieldHTTPStatus, status,
			logger.FieldError, err)
	}
	writeJSON(w, status, body)
}

// retryAfterSeconds is advertised on capacity rejections
const retryAfterSeconds = 30
