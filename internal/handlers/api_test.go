package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/models"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.Kindf(models.ErrBadInput, "bad"), http.StatusBadRequest},
		{models.Kindf(models.ErrPolicyBlocked, "blocked"), http.StatusForbidden},
		{models.Kindf(models.ErrQuotaExhausted, "quota"), http.StatusTooManyRequests},
		{models.Kindf(models.ErrTimedOut, "slow"), http.StatusGatewayTimeout},
		{models.Kindf(models.ErrStoreUnavailable, "store"), http.StatusServiceUnavailable},
		{models.Kindf(models.ErrTransientNetwork, "net"), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusForError(tc.err); got != tc.want {
			t.Errorf("StatusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	handler := NewAPIHandler(arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestVersionHandler(t *testing.T) {
	handler := NewAPIHandler(arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/version", nil)
	rec := httptest.NewRecorder()
	handler.VersionHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	version, ok := body["version"].(string)
	if !ok || version == "" {
		t.Errorf("version = %v", body["version"])
	}
}

// mockStatsService implements interfaces.StatsService for handler tests
type mockStatsService struct {
	statsFunc func(ctx context.Context) (*models.LearningStatistics, error)
}

func (m *mockStatsService) GetStatistics(ctx context.Context) (*models.LearningStatistics, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx)
	}
	return &models.LearningStatistics{}, nil
}

func TestStatsHandler(t *testing.T) {
	service := &mockStatsService{
		statsFunc: func(ctx context.Context) (*models.LearningStatistics, error) {
			return &models.LearningStatistics{
				TotalPages: 12,
				TotalBits:  40,
				BitsByCategory: map[string]int{
					"go": 25, "databases": 15,
				},
			}, nil
		},
	}
	handler := NewStatsHandler(service, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/stats", nil)
	rec := httptest.NewRecorder()
	handler.StatsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats models.LearningStatistics
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.TotalPages != 12 || stats.TotalBits != 40 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.BitsByCategory["go"] != 25 {
		t.Errorf("BitsByCategory = %v", stats.BitsByCategory)
	}
}
