package qrissue

import (
	"errors"
	"fmt"

	"EduTrack-web/internal/platform/backend"
)

// ===== Error model (attendance / dashboard と同型) =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUpstream        Code = "UPSTREAM"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrUpstream(msg string) *APIError { return &APIError{Code: CodeUpstream, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeUpstream:
			return 502
		default:
			return 500
		}
	}
	return 500
}

// バックエンド由来のエラーを APIError に寄せる
func upstream(err error) error {
	var herr *backend.HTTPError
	var serr *backend.ResponseError
	switch {
	case errors.As(err, &herr):
		return ErrUpstream(herr.Error())
	case errors.As(err, &serr):
		return ErrUpstream(serr.Message)
	default:
		return ErrUpstream(err.Error())
	}
}
