package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"

	"shipnorth/internal/backend"
	"shipnorth/internal/editor"
	"shipnorth/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// decodeJSON reads a size-limited JSON body into v. An empty body is allowed
// when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}

// writeError maps domain and backend errors to problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := http.StatusInternalServerError, "Internal Error"
	var se *backend.StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, editor.ErrSessionNotFound), errors.Is(err, editor.ErrStopNotFound),
		errors.Is(err, editor.ErrPackageNotOnRoute), errors.Is(err, store.ErrNotFound):
		status, title = http.StatusNotFound, "Not Found"
	case errors.Is(err, editor.ErrSessionClosed):
		status, title = http.StatusGone, "Session Closed"
	case errors.Is(err, editor.ErrDuplicatePackage):
		status, title = http.StatusConflict, "Duplicate Package"
	case errors.Is(err, editor.ErrSuperseded):
		status, title = http.StatusConflict, "Superseded"
	case errors.Is(err, editor.ErrStopIndex), errors.Is(err, editor.ErrInvalidStop),
		errors.Is(err, editor.ErrInvalidStatus), errors.Is(err, editor.ErrInvalidDirection),
		errors.Is(err, editor.ErrInvalidOptions), errors.Is(err, editor.ErrNoPackages):
		status, title = http.StatusBadRequest, "Invalid Request"
	case errors.Is(err, backend.ErrMalformedResponse):
		status, title = http.StatusBadGateway, "Malformed Backend Response"
	case errors.As(err, &se):
		status, title = http.StatusBadGateway, fmt.Sprintf("Backend Error %d", se.Code)
	case errors.Is(err, context.DeadlineExceeded):
		status, title = http.StatusGatewayTimeout, "Backend Timeout"
	case errors.As(err, &netErr):
		status, title = http.StatusBadGateway, "Backend Unavailable"
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		status, title = 499, "Client Closed Request"
	}
	if status >= 500 {
		log.Printf("method=%s path=%s status=%d err=%v", r.Method, r.URL.Path, status, err)
	}
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}
