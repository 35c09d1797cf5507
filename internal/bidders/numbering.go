package bidders

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NextBidderNumber assigns the next number for the event. It must run inside
// the caller's transaction: the event row lock it takes serializes concurrent
// registrations until that transaction ends.
func NextBidderNumber(ctx context.Context, tx *gorm.DB, tenantID, eventID uuid.UUID) (string, error) {
	return nextNumber(ctx, NewRepository(tx), tenantID, eventID)
}

func nextNumber(ctx context.Context, repo Repository, tenantID, eventID uuid.UUID) (string, error) {
	if _, err := repo.LockEvent(ctx, tenantID, eventID); err != nil {
		return "", err
	}
	numbers, err := repo.NumbersForEvent(ctx, tenantID, eventID)
	if err != nil {
		return "", err
	}
	return FormatBidderNumber(highestNumber(numbers) + 1), nil
}

// FormatBidderNumber zero-pads to three digits; larger numbers keep every digit.
func FormatBidderNumber(n int) string {
	return fmt.Sprintf("%03d", n)
}

// highestNumber ignores legacy numbers that are not plain digits.
func highestNumber(numbers []string) int {
	highest := 0
	for _, raw := range numbers {
		if !allDigits(raw) {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
