package validators

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

const maxCursorLength = 512

// ParseQueryInt reads an optional integer query parameter bounded to [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(key, "query parameter must be numeric", nil)
	}
	if value < min || value > max {
		return 0, fieldError(key, fmt.Sprintf("query parameter must be between %d and %d", min, max), map[string]any{"min": min, "max": max})
	}
	return value, nil
}

// ParseQueryBool reads an optional flag such as ?unread=true. Missing means false.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fieldError(key, "query parameter must be a boolean", nil)
	}
	return value, nil
}

// ParseQueryUUID reads an optional UUID filter; missing yields uuid.Nil.
func ParseQueryUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw, ok := queryValue(r, key)
	if !ok {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError(key, "query parameter must be a uuid", nil)
	}
	return id, nil
}

// QueryCursor returns the opaque pagination cursor.
func QueryCursor(r *http.Request) (string, error) {
	raw, _ := queryValue(r, "cursor")
	if len(raw) > maxCursorLength {
		return "", fieldError("cursor", "cursor is too long", nil)
	}
	return raw, nil
}

func queryValue(r *http.Request, key string) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	return raw, raw != ""
}

func fieldError(field, msg string, extra map[string]any) error {
	details := map[string]any{"field": field}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}
