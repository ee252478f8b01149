package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/electrostore/internal/database"
	"github.com/safar/electrostore/internal/store"
)

func TestSettingsSeededDefaults(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	setting, err := store.GetSetting(context.Background(), db, "GST_PERCENTAGE")
	if err != nil {
		t.Fatalf("Get seeded setting: %v", err)
	}
	if setting.Value != "18" {
		t.Errorf("Expected seeded GST of 18, got %q", setting.Value)
	}
}

func TestUpsertSetting(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	created, err := store.UpsertSetting(ctx, db, "SUPPORT_HOURS", "9-17", "Desk availability")
	if err != nil {
		t.Fatalf("Create setting: %v", err)
	}
	if created.Value != "9-17" {
		t.Errorf("Expected value 9-17, got %q", created.Value)
	}

	updated, err := store.UpsertSetting(ctx, db, "SUPPORT_HOURS", "24/7", "")
	if err != nil {
		t.Fatalf("Update setting: %v", err)
	}
	if updated.Value != "24/7" {
		t.Errorf("Expected updated value 24/7, got %q", updated.Value)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("Upsert should preserve the original creation time")
	}

	settings, err := store.ListSettings(ctx, db)
	if err != nil {
		t.Fatalf("List settings: %v", err)
	}
	if len(settings) < 7 {
		t.Errorf("Expected seeded settings plus the new key, got %d", len(settings))
	}
}

func TestGetSettingMissing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.GetSetting(context.Background(), db, "NO_SUCH_KEY")
	if !errors.Is(err, database.ErrSettingNotFound) {
		t.Errorf("Expected setting not found error, got: %v", err)
	}
}
