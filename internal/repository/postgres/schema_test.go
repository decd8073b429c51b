package postgres

import (
	"os"
	"regexp"
	"testing"
)

// An account inserted without explicit limits must come up sendable:
// zero-capacity defaults would block it on the daily window forever.
func TestAccountSchemaDefaults(t *testing.T) {
	schema, err := os.ReadFile("../../../migrations/001_create_accounts.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}

	wantDefaults := map[string]string{
		"daily_limit":               "500",
		"max_per_hour":              "100",
		"delay_between_emails_from": "3000",
		"delay_between_emails_to":   "5000",
		"sent_today":                "0",
		"sent_this_hour":            "0",
	}
	for column, def := range wantDefaults {
		re := regexp.MustCompile(column + `\s+INTEGER\s+NOT\s+NULL\s+DEFAULT\s+(\d+)`)
		m := re.FindSubmatch(schema)
		if m == nil {
			t.Errorf("column %s has no integer default", column)
			continue
		}
		if got := string(m[1]); got != def {
			t.Errorf("column %s defaults to %s, want %s", column, got, def)
		}
	}
}
