package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/salsowa/smarthome-core/internal/hierarchy"
)

var errTrailingData = errors.New("trailing data after JSON value")

// Error is the body of every error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes and the status each one is sent with.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnavailable      = "unavailable"
)

var codeStatus = map[string]int{
	ErrCodeBadRequest:       http.StatusBadRequest,
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeMethodNotAllowed: http.StatusMethodNotAllowed,
	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeUnavailable:      http.StatusServiceUnavailable,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client may be gone
}

// fail writes an Error with the status registered for code.
func fail(w http.ResponseWriter, code, message string) {
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeStoreError translates a hierarchy store error. Anything the store
// does not classify is logged and hidden behind a generic 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if nf := (*hierarchy.NotFoundError)(nil); errors.As(err, &nf) {
		fail(w, ErrCodeNotFound, nf.Message())
		return
	}
	if errors.Is(err, hierarchy.ErrInvalid) || errors.Is(err, hierarchy.ErrIDNotAllowed) {
		fail(w, ErrCodeValidation, err.Error())
		return
	}
	s.logger.Error("unexpected store error", "error", err)
	fail(w, ErrCodeInternal, "internal server error")
}

// decodeJSON reads the request body into v. On failure it has already
// answered 400 and reports false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(v)
	if err == nil {
		// The body must hold exactly one value.
		var extra json.RawMessage
		if err = dec.Decode(&extra); errors.Is(err, io.EOF) {
			return true
		}
		if err == nil {
			err = errTrailingData
		}
	}
	msg := "invalid JSON body"
	if tooBig := (*http.MaxBytesError)(nil); errors.As(err, &tooBig) {
		msg = "request body too large"
	}
	fail(w, ErrCodeBadRequest, msg)
	return false
}
