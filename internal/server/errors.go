package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"PerpAMM/internal/core"
	"PerpAMM/internal/query"
	"PerpAMM/internal/state"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
)

var (
	// errBadRequest marks malformed input detected before reaching the engine.
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// Code maps an engine or query error to a gRPC status code.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, errBadRequest):
		return codes.InvalidArgument
	case errors.Is(err, errNotFound):
		return codes.NotFound
	case errors.Is(err, core.ErrDuplicateRequest):
		return codes.AlreadyExists
	case errors.Is(err, query.ErrNoDatabase):
		return codes.Unavailable
	}
	switch state.KindOf(err) {
	case state.InvalidCaller:
		return codes.PermissionDenied
	case state.WrongStatus, state.InsufficientMargin:
		return codes.FailedPrecondition
	case state.InvalidParameter, state.DivisionByZero:
		return codes.InvalidArgument
	case state.SlippageExceeded:
		return codes.Aborted
	case state.Expired:
		return codes.DeadlineExceeded
	case state.ArithmeticOverflow:
		return codes.OutOfRange
	default:
		return codes.Internal
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// writeError renders err with the HTTP status of its gRPC code.
func writeError(w http.ResponseWriter, err error) int {
	code := Code(err)
	body := errorBody{Code: code.String(), Message: err.Error()}
	if k := state.KindOf(err); k != state.KindUnknown {
		body.Kind = k.String()
	}
	httpStatus := runtime.HTTPStatusFromCode(code)
	writeJSON(w, httpStatus, body)
	return httpStatus
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
