package badger

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/models"
)

func TestGetThresholdsDefaults(t *testing.T) {
	db := newTestDB(t)
	storage := NewThresholdStorage(db, arbor.NewLogger())

	// Nothing persisted yet: callers get the starting cutoffs, not an error
	thresholds, err := storage.GetThresholds(context.Background())
	if err != nil {
		t.Fatalf("Failed to get thresholds: %v", err)
	}
	if thresholds.MinImportance != 0.3 || thresholds.MinConfidence != 0.3 {
		t.Errorf("Expected default cutoffs 0.3/0.3, got %.2f/%.2f",
			thresholds.MinImportance, thresholds.MinConfidence)
	}
	if thresholds.Version != 0 {
		t.Errorf("Expected version 0 before any adaptation, got %d", thresholds.Version)
	}
}

func TestSaveThresholdsVersioning(t *testing.T) {
	db := newTestDB(t)
	storage := NewThresholdStorage(db, arbor.NewLogger())
	ctx := context.Background()

	thresholds := models.DefaultThresholds()
	thresholds.MinImportance = 0.35
	thresholds.CategoryBonus["programming"] = -0.05

	if err := storage.SaveThresholds(ctx, thresholds); err != nil {
		t.Fatalf("Failed to save thresholds: %v", err)
	}

	stored, err := storage.GetThresholds(ctx)
	if err != nil {
		t.Fatalf("Failed to get thresholds: %v", err)
	}
	if stored.MinImportance != 0.35 {
		t.Errorf("Expected min importance 0.35, got %.2f", stored.MinImportance)
	}
	if stored.Bonus("programming") != -0.05 {
		t.Errorf("Expected category bonus to persist, got %.2f", stored.Bonus("programming"))
	}
	if stored.Version != 1 {
		t.Errorf("Expected version 1 after first save, got %d", stored.Version)
	}
	if stored.UpdatedAt.IsZero() {
		t.Error("Expected updated_at to be set")
	}

	// Each adaptation step bumps the version
	stored.MinImportance = 0.40
	if err := storage.SaveThresholds(ctx, stored); err != nil {
		t.Fatalf("Failed to re-save thresholds: %v", err)
	}
	latest, err := storage.GetThresholds(ctx)
	if err != nil {
		t.Fatalf("Failed to get thresholds: %v", err)
	}
	if latest.Version != 2 {
		t.Errorf("Expected version 2 after second save, got %d", latest.Version)
	}
	if latest.MinImportance != 0.40 {
		t.Errorf("Expected min importance 0.40, got %.2f", latest.MinImportance)
	}
}

func TestSaveThresholdsDoesNotMutateCaller(t *testing.T) {
	db := newTestDB(t)
	storage := NewThresholdStorage(db, arbor.NewLogger())
	ctx := context.Background()

	mine := models.DefaultThresholds()
	if err := storage.SaveThresholds(ctx, mine); err != nil {
		t.Fatalf("Failed to save thresholds: %v", err)
	}
	if mine.Version != 0 {
		t.Errorf("Expected caller's copy untouched, got version %d", mine.Version)
	}
}

func TestSaveThresholdsNil(t *testing.T) {
	db := newTestDB(t)
	storage := NewThresholdStorage(db, arbor.NewLogger())

	err := storage.SaveThresholds(context.Background(), nil)
	if err == nil {
		t.Fatal("Expected error saving nil thresholds")
	}
	if kind, ok := models.KindOf(err); !ok || kind != models.ErrBadInput {
		t.Errorf("Expected bad_input error kind, got %v", err)
	}
}
