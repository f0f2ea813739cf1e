package db

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping database test")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestMigrateCreatesTables(t *testing.T) {
	db := openTestDB(t)

	tables := []string{"oauth_tokens", "kv"}
	for _, table := range tables {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s does not exist after migration", table)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestOAuthTokenRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := UpsertOAuthToken(ctx, db, "test-provider", "at-1", "rt-1", expiry, "channel:read"); err != nil {
		t.Fatalf("UpsertOAuthToken() error = %v", err)
	}

	access, refresh, gotExpiry, scope, err := GetOAuthToken(ctx, db, "test-provider")
	if err != nil {
		t.Fatalf("GetOAuthToken() error = %v", err)
	}
	if access != "at-1" || refresh != "rt-1" || scope != "channel:read" {
		t.Errorf("got (%q, %q, %q), want (at-1, rt-1, channel:read)", access, refresh, scope)
	}
	if !gotExpiry.UTC().Truncate(time.Second).Equal(expiry) {
		t.Errorf("expiry = %v, want %v", gotExpiry, expiry)
	}

	// Upsert replaces the row wholesale
	if err := UpsertOAuthToken(ctx, db, "test-provider", "at-2", "rt-2", expiry, ""); err != nil {
		t.Fatalf("second UpsertOAuthToken() error = %v", err)
	}
	access, refresh, _, _, err = GetOAuthToken(ctx, db, "test-provider")
	if err != nil {
		t.Fatalf("GetOAuthToken() after upsert error = %v", err)
	}
	if access != "at-2" || refresh != "rt-2" {
		t.Errorf("got (%q, %q), want (at-2, rt-2)", access, refresh)
	}
}

func TestGetOAuthTokenMissingProvider(t *testing.T) {
	db := openTestDB(t)

	access, refresh, expiry, scope, err := GetOAuthToken(context.Background(), db, "never-seen")
	if err != nil {
		t.Fatalf("GetOAuthToken() error = %v", err)
	}
	if access != "" || refresh != "" || scope != "" || !expiry.IsZero() {
		t.Errorf("expected zero values for missing provider, got (%q, %q, %v, %q)", access, refresh, expiry, scope)
	}
}

func TestKVRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := SetKV(ctx, db, "test_key", "v1"); err != nil {
		t.Fatalf("SetKV() error = %v", err)
	}
	if got := GetKV(ctx, db, "test_key"); got != "v1" {
		t.Errorf("GetKV() = %q, want v1", got)
	}

	if err := SetKV(ctx, db, "test_key", "v2"); err != nil {
		t.Fatalf("SetKV() update error = %v", err)
	}
	if got := GetKV(ctx, db, "test_key"); got != "v2" {
		t.Errorf("GetKV() after update = %q, want v2", got)
	}

	if got := GetKV(ctx, db, "missing_key"); got != "" {
		t.Errorf("GetKV() for missing key = %q, want empty", got)
	}
}

func TestTokenStoreAdapter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	store := &TokenStoreAdapter{DB: db}
	expiry := time.Now().Add(30 * time.Minute)
	if err := store.UpsertOAuthToken(ctx, "adapter-provider", "at", "rt", expiry, "s"); err != nil {
		t.Fatalf("adapter upsert error = %v", err)
	}
	access, refresh, _, _, err := store.GetOAuthToken(ctx, "adapter-provider")
	if err != nil {
		t.Fatalf("adapter get error = %v", err)
	}
	if access != "at" || refresh != "rt" {
		t.Errorf("adapter round trip got (%q, %q), want (at, rt)", access, refresh)
	}
}
