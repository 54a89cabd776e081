package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/CitizenPortal/pkg/errors"
)

const maxErrorBody = 1 << 20

// ResponseError is a non-2xx reply from a downstream service with whatever
// human-readable detail could be extracted from its body.
type ResponseError struct {
	Service    string
	StatusCode int
	Detail     string
	Fields     []apperrors.FieldError
	Body       string
}

func (e *ResponseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
}

// IsClientError reports whether the downstream rejected the request itself (4xx).
func (e *ResponseError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// errorBody covers the error shapes the order backend and our own services
// emit: {"detail": "..."}, {"detail": [{"loc": [...], "msg": "..."}]},
// {"errors": [{"field": "...", "message": "..."}]} and
// {"error": {"code": "...", "message": "..."}}.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Errors []fieldEntry    `json:"errors"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

type fieldEntry struct {
	Field   string `json:"field"`
	Loc     []any  `json:"loc"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

func (f fieldEntry) toFieldError() apperrors.FieldError {
	name := f.Field
	if name == "" && len(f.Loc) > 0 {
		// Skip the "body" prefix; the last element names the field.
		name = fmt.Sprint(f.Loc[len(f.Loc)-1])
	}
	msg := f.Message
	if msg == "" {
		msg = f.Msg
	}
	return apperrors.FieldError{Field: name, Message: msg}
}

// ParseResponseError reads the body of a non-2xx HTTP response and returns
// a *ResponseError. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}
	return NewResponseError(serviceName, resp.StatusCode, bodyBytes)
}

// NewResponseError builds a *ResponseError from a status code and raw body.
func NewResponseError(serviceName string, status int, body []byte) *ResponseError {
	detail, fields := ExtractDetail(body)
	return &ResponseError{
		Service:    serviceName,
		StatusCode: status,
		Detail:     detail,
		Fields:     fields,
		Body:       string(body),
	}
}

// ExtractDetail pulls a readable message and per-field errors out of a JSON
// error body. Non-JSON bodies yield their trimmed text as detail.
func ExtractDetail(body []byte) (string, []apperrors.FieldError) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", nil
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		if len(trimmed) > 512 {
			trimmed = trimmed[:512]
		}
		return trimmed, nil
	}

	if len(eb.Detail) > 0 {
		var s string
		if json.Unmarshal(eb.Detail, &s) == nil {
			return s, nil
		}
		var entries []fieldEntry
		if json.Unmarshal(eb.Detail, &entries) == nil && len(entries) > 0 {
			fields := toFieldErrors(entries)
			return apperrors.JoinFields(fields), fields
		}
	}
	if len(eb.Errors) > 0 {
		fields := toFieldErrors(eb.Errors)
		return apperrors.JoinFields(fields), fields
	}
	if eb.Error != nil && eb.Error.Message != "" {
		return eb.Error.Message, nil
	}
	return eb.Message, nil
}

// HasDetail reports whether a JSON payload carries a "detail" key, which the
// backend uses to signal failure even on 2xx responses.
func HasDetail(body []byte) (string, bool) {
	var eb errorBody
	if json.Unmarshal(body, &eb) != nil || len(eb.Detail) == 0 || string(eb.Detail) == "null" {
		return "", false
	}
	detail, _ := ExtractDetail(body)
	return detail, true
}

func toFieldErrors(entries []fieldEntry) []apperrors.FieldError {
	out := make([]apperrors.FieldError, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.toFieldError())
	}
	return out
}

// AsResponseError unwraps err into a *ResponseError when possible.
func AsResponseError(err error) (*ResponseError, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
