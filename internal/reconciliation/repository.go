package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/biddart/biddart-backend/pkg/db"
	"github.com/biddart/biddart-backend/pkg/db/models"
	"github.com/biddart/biddart-backend/pkg/enums"
)

// Repository persists reconciliation cases.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, c *models.ReconciliationCase) error
	Find(ctx context.Context, tenantID, caseID uuid.UUID) (*models.ReconciliationCase, error)
	Lock(ctx context.Context, tenantID, caseID uuid.UUID) (*models.ReconciliationCase, error)
	FindOpenForSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.ReconciliationCase, error)
	FindOpenBySessionID(ctx context.Context, sessionID uuid.UUID) (*models.ReconciliationCase, error)
	ListOpen(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.ReconciliationCase, error)
	ClaimSweepable(ctx context.Context, limit int) ([]models.ReconciliationCase, error)
	Resolve(ctx context.Context, tenantID, caseID uuid.UUID, resolution enums.ReconciliationResolution, resolvedBy *uuid.UUID, at time.Time) (bool, error)
	SetPaymentID(ctx context.Context, tenantID, caseID uuid.UUID, paymentID string) error
	RecordAttempt(ctx context.Context, tenantID, caseID uuid.UUID, lastErr *string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, c *models.ReconciliationCase) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *repository) Find(ctx context.Context, tenantID, caseID uuid.UUID) (*models.ReconciliationCase, error) {
	var c models.ReconciliationCase
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, caseID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) Lock(ctx context.Context, tenantID, caseID uuid.UUID) (*models.ReconciliationCase, error) {
	var c models.ReconciliationCase
	if err := dbpkg.ForUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, caseID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) FindOpenForSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.ReconciliationCase, error) {
	var c models.ReconciliationCase
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ? AND status = ?", tenantID, sessionID, enums.ReconciliationStatusOpen).
		Order("created_at ASC").
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindOpenBySessionID looks across tenants; webhooks only know the session reference.
func (r *repository) FindOpenBySessionID(ctx context.Context, sessionID uuid.UUID) (*models.ReconciliationCase, error) {
	var c models.ReconciliationCase
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, enums.ReconciliationStatusOpen).
		Order("created_at ASC").
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) ListOpen(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.ReconciliationCase, error) {
	var rows []models.ReconciliationCase
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, enums.ReconciliationStatusOpen).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ClaimSweepable locks open cases that carry a gateway payment id, least checked first.
func (r *repository) ClaimSweepable(ctx context.Context, limit int) ([]models.ReconciliationCase, error) {
	var rows []models.ReconciliationCase
	err := dbpkg.SkipLocked(r.db.WithContext(ctx)).
		Where("status = ? AND external_payment_id IS NOT NULL AND external_payment_id <> ''", enums.ReconciliationStatusOpen).
		Order("attempts ASC, created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Resolve(ctx context.Context, tenantID, caseID uuid.UUID, resolution enums.ReconciliationResolution, resolvedBy *uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ReconciliationCase{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, caseID, enums.ReconciliationStatusOpen).
		Updates(map[string]any{
			"status":      enums.ReconciliationStatusResolved,
			"resolution":  resolution,
			"resolved_by": resolvedBy,
			"resolved_at": at,
			"updated_at":  at,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *repository) SetPaymentID(ctx context.Context, tenantID, caseID uuid.UUID, paymentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.ReconciliationCase{}).
		Where("tenant_id = ? AND id = ?", tenantID, caseID).
		Update("external_payment_id", paymentID).Error
}

func (r *repository) RecordAttempt(ctx context.Context, tenantID, caseID uuid.UUID, lastErr *string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ReconciliationCase{}).
		Where("tenant_id = ? AND id = ?", tenantID, caseID).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_checked_at": at,
			"last_error":      lastErr,
		}).Error
}
