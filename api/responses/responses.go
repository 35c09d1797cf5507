package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/logger"
	"github.com/biddart/biddart-backend/pkg/types"
)

const requestIDHeader = "X-Request-Id"

// Details lifted into log fields for payment investigations.
var loggedDetailKeys = []string{"external_payment_id", "session_id", "item_id"}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	_ = encode(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err as the public error envelope. Untyped errors become
// INTERNAL_ERROR and never leak their text; 5xx responses are logged at error
// level, the rest at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := publicError(typed, meta)
	body.RequestID = w.Header().Get(requestIDHeader)

	if logg != nil {
		ctx = logg.WithFields(ctx, errorFields(err, typed))
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}

	if encodeErr := encode(w, meta.HTTPStatus, types.ErrorEnvelope{Error: body}); encodeErr != nil && logg != nil {
		logg.Error(ctx, "encode error response", encodeErr)
	}
}

func publicError(typed *pkgerrors.Error, meta pkgerrors.Metadata) types.APIError {
	out := types.APIError{Code: string(typed.Code()), Message: meta.PublicMessage}
	if m := typed.Message(); meta.ExposeMessage && m != "" {
		out.Message = m
	}
	if meta.DetailsAllowed {
		out.Details = typed.Details()
	}
	return out
}

func errorFields(err error, typed *pkgerrors.Error) map[string]any {
	dump := pkgerrors.Dump(err)
	fields := map[string]any{
		"error":       dump.TopMessage,
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
		"retryable":   dump.Retryable,
	}
	if len(dump.Causes) > 0 {
		fields["error_causes"] = dump.Causes
	}
	if dump.Driver != "" {
		fields["db_driver"] = dump.Driver
	}
	switch {
	case dump.PGCode != "":
		for k, v := range map[string]string{
			"pg_code":       dump.PGCode,
			"pg_detail":     dump.PGDetail,
			"pg_message":    dump.PGMessage,
			"pg_table":      dump.PGTable,
			"pg_column":     dump.PGColumn,
			"pg_constraint": dump.PGConstraint,
		} {
			if v != "" {
				fields[k] = v
			}
		}
	case dump.SQLiteCode != 0:
		fields["sqlite_code"] = dump.SQLiteCode
		fields["sqlite_extended"] = dump.SQLiteExtended
	}
	if details, ok := typed.Details().(map[string]any); ok {
		for _, key := range loggedDetailKeys {
			if v, found := details[key]; found {
				fields[key] = v
			}
		}
	}
	return fields
}

func encode(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}
