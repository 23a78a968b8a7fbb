package client

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-trade-client/utils"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindUnknownOperation
	KindAuth
	KindRateLimited
	KindServer
	KindNetwork
	KindValidation
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrAuth             = errors.New("authentication failed")
	ErrRateLimited      = errors.New("rate limited")
	ErrServer           = errors.New("server error")
	ErrNetwork          = errors.New("network error")
	ErrValidation       = errors.New("validation failed")
	ErrUnknown          = errors.New("request failed")
)

func (k Kind) String() string {
	switch k {
	case KindUnknownOperation:
		return "unknown_operation"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindUnknownOperation:
		return ErrUnknownOperation
	case KindAuth:
		return ErrAuth
	case KindRateLimited:
		return ErrRateLimited
	case KindServer:
		return ErrServer
	case KindNetwork:
		return ErrNetwork
	case KindValidation:
		return ErrValidation
	default:
		return ErrUnknown
	}
}

// Fallback is the user-facing message used when the server gave none.
func (k Kind) Fallback() string {
	switch k {
	case KindUnknownOperation:
		return "This action is not available."
	case KindAuth:
		return "Your session has expired. Please sign in again."
	case KindRateLimited:
		return "Too many requests. Please wait a moment and try again."
	case KindServer:
		return "The service is temporarily unavailable. Please try again later."
	case KindNetwork:
		return "Unable to reach the server. Check your connection and try again."
	case KindValidation:
		return "Some of the submitted fields are invalid."
	default:
		return "Something went wrong. Please try again."
	}
}

// Retryable reports whether one more attempt may succeed.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindServer
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the only error type Invoke returns. errors.Is matches it against
// the Err* sentinel of its kind.
type Error struct {
	Kind      Kind
	Operation string
	Status    int
	Message   string
	RequestID string
	Fields    []FieldError
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Operation)
	if e.Status > 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of a dispatcher error, or KindUnknown for any other
// error.
func KindOf(err error) Kind {
	var callErr *Error
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return KindUnknown
}

func classifyStatus(status int) Kind {
	switch {
	case status == fasthttp.StatusUnauthorized:
		return KindAuth
	case status == fasthttp.StatusTooManyRequests:
		return KindRateLimited
	case status == fasthttp.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

type errorBody struct {
	Detail  interface{}            `json:"detail"`
	Error   interface{}            `json:"error"`
	Message string                 `json:"message"`
	Errors  map[string]interface{} `json:"errors"`
}

type locatedDetail struct {
	Loc []interface{} `json:"loc"`
	Msg string        `json:"msg"`
}

// newStatusError builds the classified error for a non-2xx response.
func newStatusError(operation string, status int, body []byte, requestID string) *Error {
	kind := classifyStatus(status)

	callErr := &Error{
		Kind:      kind,
		Operation: operation,
		Status:    status,
		RequestID: requestID,
	}

	var parsed errorBody
	if len(body) > 0 && utils.Unmarshal(body, &parsed) == nil {
		callErr.Message = detailMessage(parsed)
		if kind == KindValidation {
			callErr.Fields = fieldErrors(parsed)
		}
	}

	if callErr.Message == "" {
		callErr.Message = kind.Fallback()
	}

	return callErr
}

func newNetworkError(operation, requestID string, err error) *Error {
	return &Error{
		Kind:      KindNetwork,
		Operation: operation,
		RequestID: requestID,
		Message:   KindNetwork.Fallback(),
		Err:       err,
	}
}

func detailMessage(body errorBody) string {
	if msg, ok := body.Detail.(string); ok && msg != "" {
		return msg
	}
	if list, ok := body.Detail.([]interface{}); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]interface{}); ok {
			if msg, ok := first["msg"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	if msg, ok := body.Error.(string); ok && msg != "" {
		return msg
	}
	if nested, ok := body.Error.(map[string]interface{}); ok {
		if msg, ok := nested["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return body.Message
}

func fieldErrors(body errorBody) []FieldError {
	var fields []FieldError

	if list, ok := body.Detail.([]interface{}); ok {
		for _, item := range list {
			raw, err := utils.Marshal(item)
			if err != nil {
				continue
			}
			var detail locatedDetail
			if utils.Unmarshal(raw, &detail) != nil || detail.Msg == "" {
				continue
			}
			fields = append(fields, FieldError{Field: locField(detail.Loc), Message: detail.Msg})
		}
	}

	names := make([]string, 0, len(body.Errors))
	for name := range body.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch v := body.Errors[name].(type) {
		case string:
			fields = append(fields, FieldError{Field: name, Message: v})
		case []interface{}:
			for _, msg := range v {
				if s, ok := msg.(string); ok {
					fields = append(fields, FieldError{Field: name, Message: s})
				}
			}
		}
	}

	return fields
}

// locField drops the leading "body"/"query" segment FastAPI puts in loc.
func locField(loc []interface{}) string {
	parts := make([]string, 0, len(loc))
	for i, p := range loc {
		s := fmt.Sprint(p)
		if i == 0 && (s == "body" || s == "query" || s == "path") && len(loc) > 1 {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ".")
}
