package cron

import (
	"context"
	"fmt"

	"github.com/biddart/biddart-backend/internal/reconciliation"
	"github.com/biddart/biddart-backend/pkg/logger"
)

const defaultReconciliationBatch = 25

type reconciliationSweeper interface {
	Sweep(ctx context.Context, limit int) (reconciliation.SweepResult, error)
}

type ReconciliationJobParams struct {
	Logger    *logger.Logger
	Sweeper   reconciliationSweeper
	BatchSize int
}

// NewReconciliationJob asks the gateway about open reconciliation cases.
func NewReconciliationJob(params ReconciliationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("reconciliation sweeper required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconciliationBatch
	}
	return &reconciliationJob{logg: params.Logger, sweeper: params.Sweeper, batch: batch}, nil
}

type reconciliationJob struct {
	logg    *logger.Logger
	sweeper reconciliationSweeper
	batch   int
}

func (j *reconciliationJob) Name() string { return "reconciliation" }

func (j *reconciliationJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Sweep(ctx, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":  result.Checked,
		"resolved": result.Resolved,
		"waiting":  result.Waiting,
		"errors":   result.Errors,
	})
	if err != nil {
		return fmt.Errorf("reconciliation sweep: %w", err)
	}
	if result.Checked > 0 {
		j.logg.Info(logCtx, "reconciliation sweep complete")
	}
	return nil
}
