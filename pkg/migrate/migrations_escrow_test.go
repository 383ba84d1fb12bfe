package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sokoplace/escrow-backend/pkg/migrate"
)

func TestEscrowMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_escrow_records.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no escrow migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS escrow_records",
		"FOREIGN KEY (order_id) REFERENCES vendor_orders(id) ON DELETE CASCADE",
		"CHECK (amount >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_escrow_records_order",
		"WHERE status = 'held'",
		"DROP TABLE IF EXISTS escrow_records",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestConfirmationMigrationContainsUniqueTokenHash(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_delivery_confirmations.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no delivery confirmation migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS delivery_confirmations",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_delivery_confirmations_token_hash",
		"used_at TIMESTAMPTZ",
		"DROP TABLE IF EXISTS delivery_confirmations",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirectoryValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
