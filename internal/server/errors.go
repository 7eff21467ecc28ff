// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package server

import (
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
)

func init() {
	huma.NewError = newError
}

// errorBody is the only error shape the API returns: {"error": "..."}.
type errorBody struct {
	status  int
	Message string `json:"error" doc:"Error message"`
}

func (e *errorBody) Error() string  { return e.Message }
func (e *errorBody) GetStatus() int { return e.status }

// newError replaces huma's RFC 9457 errors. Request validation failures are
// reported as 400 like every other client error.
func newError(status int, msg string, errs ...error) huma.StatusError {
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}

	details := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			details = append(details, err.Error())
		}
	}
	if len(details) > 0 && status < http.StatusInternalServerError {
		msg = msg + ": " + strings.Join(details, "; ")
	}
	return &errorBody{status: status, Message: msg}
}

// apiError converts a service error into the response error. Server errors
// keep the underlying message and are logged with the operation name and the
// error's context fields.
func apiError(op string, err error) error {
	status := lberr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", logAttrs(op, err)...)
	}
	return &errorBody{status: status, Message: err.Error()}
}

func logAttrs(op string, err error) []any {
	attrs := []any{
		"op", op,
		"code", string(lberr.CodeOf(err)),
		"upstream", lberr.IsUpstreamFailure(err),
	}
	fields := lberr.FieldsOf(err)
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		attrs = append(attrs, k, fields[k])
	}
	return append(attrs, "error", err)
}
