package badger

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/percipio/internal/models"
)

func TestSaveCrossRefDeduplicates(t *testing.T) {
	db := newTestDB(t)
	storage := NewCrossRefStorage(db, arbor.NewLogger())
	ctx := context.Background()

	ref := &models.CrossReference{
		SourceBitID:  "bit-a",
		TargetBitID:  "bit-b",
		RelationType: models.RelationRelated,
		Strength:     0.6,
	}
	if err := storage.SaveCrossRef(ctx, ref); err != nil {
		t.Fatalf("Failed to save cross reference: %v", err)
	}

	// Re-discovering the same triple updates in place
	again := &models.CrossReference{
		SourceBitID:  "bit-a",
		TargetBitID:  "bit-b",
		RelationType: models.RelationRelated,
		Strength:     0.9,
	}
	if err := storage.SaveCrossRef(ctx, again); err != nil {
		t.Fatalf("Failed to re-save cross reference: %v", err)
	}

	count, err := storage.CountCrossRefs(ctx)
	if err != nil {
		t.Fatalf("Failed to count cross references: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 cross reference after re-save, got %d", count)
	}

	// A different relation between the same bits is a distinct edge
	depends := &models.CrossReference{
		SourceBitID:  "bit-a",
		TargetBitID:  "bit-b",
		RelationType: models.RelationDependsOn,
		Strength:     0.5,
	}
	if err := storage.SaveCrossRef(ctx, depends); err != nil {
		t.Fatalf("Failed to save second relation: %v", err)
	}
	count, err = storage.CountCrossRefs(ctx)
	if err != nil {
		t.Fatalf("Failed to count cross references: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 cross references, got %d", count)
	}
}

func TestSaveCrossRefValidation(t *testing.T) {
	db := newTestDB(t)
	storage := NewCrossRefStorage(db, arbor.NewLogger())
	ctx := context.Background()

	tests := []struct {
		name string
		ref  models.CrossReference
	}{
		{"missing source", models.CrossReference{TargetBitID: "b", RelationType: models.RelationRelated}},
		{"missing target", models.CrossReference{SourceBitID: "a", RelationType: models.RelationRelated}},
		{"unknown relation", models.CrossReference{SourceBitID: "a", TargetBitID: "b", RelationType: "friends"}},
		{"strength out of range", models.CrossReference{SourceBitID: "a", TargetBitID: "b", RelationType: models.RelationRelated, Strength: 1.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storage.SaveCrossRef(ctx, &tt.ref)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if kind, ok := models.KindOf(err); !ok || kind != models.ErrBadInput {
				t.Errorf("Expected bad_input error kind, got %v", err)
			}
		})
	}
}

func TestGetRefsForBitEitherSide(t *testing.T) {
	db := newTestDB(t)
	storage := NewCrossRefStorage(db, arbor.NewLogger())
	ctx := context.Background()

	refs := []*models.CrossReference{
		{SourceBitID: "bit-x", TargetBitID: "bit-y", RelationType: models.RelationRelated, Strength: 0.5},
		{SourceBitID: "bit-z", TargetBitID: "bit-x", RelationType: models.RelationSimilar, Strength: 0.7},
		{SourceBitID: "bit-y", TargetBitID: "bit-z", RelationType: models.RelationRelated, Strength: 0.4},
	}
	for _, ref := range refs {
		if err := storage.SaveCrossRef(ctx, ref); err != nil {
			t.Fatalf("Failed to save cross reference: %v", err)
		}
	}

	found, err := storage.GetRefsForBit(ctx, "bit-x")
	if err != nil {
		t.Fatalf("Failed to get references: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("Expected 2 references touching bit-x, got %d", len(found))
	}

	if err := storage.DeleteRefsForBit(ctx, "bit-x"); err != nil {
		t.Fatalf("Failed to delete references: %v", err)
	}
	found, err = storage.GetRefsForBit(ctx, "bit-x")
	if err != nil {
		t.Fatalf("Failed to get references: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("Expected no references after delete, got %d", len(found))
	}

	// The unrelated edge survives
	remaining, err := storage.GetRefsForBit(ctx, "bit-y")
	if err != nil {
		t.Fatalf("Failed to get references: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("Expected bit-y to keep its unrelated edge, got %d", len(remaining))
	}
}

func TestSearchLogRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewSearchLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	old := &models.SearchRecord{
		Query:          "golang concurrency",
		Provider:       "serper",
		Timestamp:      time.Now().Add(-48 * time.Hour),
		ResultURL:      "https://example.com/old",
		RelevanceScore: 0.4,
	}
	recent := &models.SearchRecord{
		Query:          "golang concurrency",
		Provider:       "brave",
		ResultURL:      "https://example.com/new",
		RelevanceScore: 0.8,
	}
	if err := storage.LogResults(ctx, []*models.SearchRecord{old, recent}); err != nil {
		t.Fatalf("Failed to log search results: %v", err)
	}

	count, err := storage.CountSearches(ctx)
	if err != nil {
		t.Fatalf("Failed to count searches: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 search records, got %d", count)
	}

	// Window filter only returns recent activity
	records, err := storage.RecentSearches(ctx, time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("Failed to load recent searches: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 recent record, got %d", len(records))
	}
	if records[0].ResultURL != "https://example.com/new" {
		t.Errorf("Expected the recent record, got %s", records[0].ResultURL)
	}
	if records[0].Timestamp.IsZero() {
		t.Error("Expected timestamp defaulted on log")
	}
}
