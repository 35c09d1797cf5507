package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusPaymentRequired:     pkgerrors.CodePaymentDeclined,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

func domainCodeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

// mapError turns an SDK failure into a typed error. Square's error list wins over
// the HTTP status; transport failures are dependency errors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := "square " + strings.ReplaceAll(op, "_", " ") + " failed"
	apiErr, details := apiErrors(err)
	if apiErr == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	code := domainCodeForStatus(apiErr.StatusCode)
	for _, d := range details {
		if c, ok := codeForSquareError(d); ok {
			code = c
			break
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

func codeForSquareError(e *sq.Error) (pkgerrors.Code, bool) {
	switch {
	case e.Code == sq.ErrorCodeIdempotencyKeyReused:
		return pkgerrors.CodeIdempotency, true
	case e.Category == sq.ErrorCategoryAuthenticationError:
		return pkgerrors.CodeUnauthorized, true
	case e.Category == sq.ErrorCategoryPaymentMethodError:
		return pkgerrors.CodePaymentDeclined, true
	}
	return "", false
}

// DeclineDetail returns Square's human-readable reason when err is a card decline.
func DeclineDetail(err error) (string, bool) {
	_, details := apiErrors(err)
	for _, d := range details {
		if d.Category == sq.ErrorCategoryPaymentMethodError {
			return describe(d), true
		}
	}
	return "", false
}

// ErrorDetail returns the first detail Square attached to err, if any.
func ErrorDetail(err error) string {
	_, details := apiErrors(err)
	if len(details) == 0 {
		return ""
	}
	return describe(details[0])
}

// StatusCode returns the HTTP status Square answered with, or 0 when no response was received.
func StatusCode(err error) int {
	if apiErr, _ := apiErrors(err); apiErr != nil {
		return apiErr.StatusCode
	}
	return 0
}

func describe(e *sq.Error) string {
	if detail := strings.TrimSpace(stringValue(e.Detail)); detail != "" {
		return detail
	}
	return string(e.Code)
}

// apiErrors finds the SDK's APIError in err's chain and decodes the error list
// from its body. Nil entries are dropped.
func apiErrors(err error) (*sqcore.APIError, []*sq.Error) {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return nil, nil
	}
	return apiErr, extractSquareErrors(apiErr)
}

func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil || apiErr.Unwrap() == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(apiErr.Unwrap().Error())), &body); err != nil {
		return nil
	}
	out := body.Errors[:0]
	for _, e := range body.Errors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
