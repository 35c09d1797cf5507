package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/pkg/db/models"
)

type dlqAdmin interface {
	ListForTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.OutboxDLQ, error)
	Replay(ctx context.Context, eventID uuid.UUID) error
}

const dlqUsage = "usage: outbox-publisher dlq list <tenant-id> [limit] | dlq replay <event-id>"

// runDLQCommand serves the operator subcommands; replayed events are picked up by the
// next publisher poll.
func runDLQCommand(ctx context.Context, repo dlqAdmin, args []string, out io.Writer) error {
	if len(args) < 2 {
		return errors.New(dlqUsage)
	}
	id, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], err)
	}

	switch args[0] {
	case "list":
		limit := 0
		if len(args) > 2 {
			if limit, err = strconv.Atoi(args[2]); err != nil {
				return fmt.Errorf("invalid limit %q", args[2])
			}
		}
		rows, err := repo.ListForTenant(ctx, id, limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			msg := ""
			if row.ErrorMessage != nil {
				msg = *row.ErrorMessage
			}
			fmt.Fprintf(out, "%s\t%s\t%s\t%d\t%s\t%s\n",
				row.EventID, row.EventType, row.ErrorReason, row.AttemptCount, row.FailedAt.UTC().Format(time.RFC3339), msg)
		}
		return nil
	case "replay":
		if err := repo.Replay(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "event %s re-queued\n", id)
		return nil
	default:
		return errors.New(dlqUsage)
	}
}
