package controllers

import (
	"net/http"

	"github.com/biddart/biddart-backend/api/middleware"
	"github.com/biddart/biddart-backend/internal/tenancy"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
)

func requestScope(r *http.Request) (tenancy.Scope, error) {
	scope, ok := middleware.ScopeFromContext(r.Context())
	if !ok {
		return tenancy.Scope{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant scope missing")
	}
	if err := scope.Validate(); err != nil {
		return tenancy.Scope{}, err
	}
	return scope, nil
}
