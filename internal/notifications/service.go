package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/internal/tenancy"
	"github.com/biddart/biddart-backend/pkg/db/models"
	pkgerrors "github.com/biddart/biddart-backend/pkg/errors"
	"github.com/biddart/biddart-backend/pkg/pagination"
)

// Service defines notification list/read operations for staff.
type Service interface {
	List(ctx context.Context, scope tenancy.Scope, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, scope tenancy.Scope, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, scope tenancy.Scope) (int64, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// ListParams configures pagination for notifications.
type ListParams struct {
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult is one page of notifications plus the tenant's total unread count.
type ListResult struct {
	Items  []models.Notification
	Cursor string
	Unread int64
}

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) List(ctx context.Context, scope tenancy.Scope, params ListParams) (*ListResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := listQuery{
		TenantID:   scope.TenantID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	page, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, scope.TenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}

	result := &ListResult{Items: page.Rows, Unread: unread}
	if page.Next != nil {
		result.Cursor = pagination.EncodeCursor(*page.Next)
	}
	return result, nil
}

func (s *service) readMark(scope tenancy.Scope) readMark {
	return readMark{TenantID: scope.TenantID, ReaderID: scope.Actor(), At: s.now()}
}

// MarkRead is idempotent; reading an already read notification succeeds and keeps
// the original reader.
func (s *service) MarkRead(ctx context.Context, scope tenancy.Scope, notificationID uuid.UUID) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	outcome, err := s.repo.MarkRead(ctx, s.readMark(scope), notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if outcome == markMissing {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, scope tenancy.Scope) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	count, err := s.repo.MarkAllRead(ctx, s.readMark(scope))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
