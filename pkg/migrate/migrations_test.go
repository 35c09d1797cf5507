package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biddart/biddart-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestBiddersMigrationKeepsNumbersUniquePerEvent(t *testing.T) {
	content := readMigration(t, "create_auction_items_and_bidders")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS bidders",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_bidders_event_number ON bidders (event_id, bidder_number)",
		"DROP TABLE IF EXISTS bidders",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestBidsMigrationAcceptsZeroAmountEntries(t *testing.T) {
	content := readMigration(t, "create_bids")
	if !strings.Contains(content, "CHECK (amount_cents >= 0)") {
		t.Fatal("raffle and donation bids of zero must pass the amount check")
	}
	if strings.Contains(content, "CHECK (amount_cents > 0)") {
		t.Fatal("amount check must not reject zero")
	}
}

func TestCheckoutMigrationGuardsActiveBidAttachment(t *testing.T) {
	content := readMigration(t, "create_checkout_sessions")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS checkout_sessions",
		"CREATE TABLE IF NOT EXISTS checkout_session_bids",
		"ux_checkout_session_bids_active ON checkout_session_bids (bid_id) WHERE released_at IS NULL",
		"CHECK (refunded_cents >= 0 AND refunded_cents <= total_cents)",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationIndexesUnpublished(t *testing.T) {
	content := readMigration(t, "create_outbox")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"WHERE published_at IS NULL",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Item Photos!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_item_photos.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}
