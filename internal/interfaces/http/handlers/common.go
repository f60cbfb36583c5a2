package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"

	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// defaultMaxBody caps request bodies when the server config leaves it unset.
const defaultMaxBody int64 = 4 << 20

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeAppError maps err to a status through its error code. Server-side
// failures are answered with the code's default message only.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := pkgerrors.GetCode(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = pkgerrors.ErrCodeTimeout
	case code == pkgerrors.CodeUnknown:
		code = pkgerrors.ErrCodeInternal
	}
	status := pkgerrors.HTTPStatusForCode(code)

	resp := ErrorResponse{
		Code:      code.String(),
		Message:   pkgerrors.DefaultMessageForCode(code),
		RequestID: chimw.GetReqID(r.Context()),
	}
	var ae *pkgerrors.AppError
	if status < http.StatusInternalServerError && pkgerrors.As(err, &ae) {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads one JSON document of at most maxBody bytes into v.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBody int64, v interface{}) error {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return pkgerrors.InvalidParam("request body is empty")
		}
		return pkgerrors.InvalidParam("malformed request body").WithDetail(err.Error())
	}
	return nil
}

// parsePagination reads limit and offset. Unparseable values fall back to
// zero and are clamped by the service.
func parsePagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}
