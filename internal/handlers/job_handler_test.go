package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/common"
	"github.com/ternarybob/percipio/internal/interfaces"
	"github.com/ternarybob/percipio/internal/models"
	"github.com/ternarybob/percipio/internal/storage/badger"
)

// mockScheduler implements interfaces.SchedulerService for handler tests
type mockScheduler struct {
	scheduleFunc func(ctx context.Context, job *models.CrawlJob) error
	cancelFunc   func(ctx context.Context, jobID string) error
}

func (m *mockScheduler) Start() error { return nil }
func (m *mockScheduler) Stop() error  { return nil }

func (m *mockScheduler) Schedule(ctx context.Context, job *models.CrawlJob) error {
	if m.scheduleFunc != nil {
		return m.scheduleFunc(ctx, job)
	}
	return nil
}

func (m *mockScheduler) Cancel(ctx context.Context, jobID string) error {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, jobID)
	}
	return nil
}

func (m *mockScheduler) QueueLength(ctx context.Context) (int, error) { return 0, nil }
func (m *mockScheduler) QueueStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	storage, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func devConfig() *common.Config {
	return &common.Config{Environment: "development"}
}

func TestCreateJobHandler(t *testing.T) {
	storage := newTestStorage(t)
	scheduler := &mockScheduler{
		scheduleFunc: func(ctx context.Context, job *models.CrawlJob) error {
			job.JobID = "job-new"
			job.State = models.JobStateQueued
			return nil
		},
	}
	handler := NewJobHandler(scheduler, storage.JobStorage(), devConfig(), arbor.NewLogger())

	body := `{"seed_url":"https://example.com/docs","priority":"high"}`
	req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.CreateJobHandler(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response["job_id"] != "job-new" {
		t.Errorf("job_id = %v", response["job_id"])
	}
	if response["priority"] != "high" {
		t.Errorf("priority = %v, want high", response["priority"])
	}
}

func TestCreateJobHandlerRejectsBadSeed(t *testing.T) {
	storage := newTestStorage(t)
	handler := NewJobHandler(&mockScheduler{}, storage.JobStorage(), devConfig(), arbor.NewLogger())

	for _, body := range []string{
		`{"seed_url":""}`,
		`{"seed_url":"ftp://example.com"}`,
		`not json`,
	} {
		req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.CreateJobHandler(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestCreateJobHandlerBlocksPrivateSeedInProduction(t *testing.T) {
	storage := newTestStorage(t)
	config := &common.Config{Environment: "production"}
	handler := NewJobHandler(&mockScheduler{}, storage.JobStorage(), config, arbor.NewLogger())

	req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(`{"seed_url":"http://127.0.0.1:8080/"}`))
	rec := httptest.NewRecorder()
	handler.CreateJobHandler(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestGetJobHandler(t *testing.T) {
	storage := newTestStorage(t)
	job := &models.CrawlJob{JobID: "job-1", SeedURL: "https://example.com", State: models.JobStateCompleted}
	if err := storage.JobStorage().SaveJob(context.Background(), job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}
	handler := NewJobHandler(&mockScheduler{}, storage.JobStorage(), devConfig(), arbor.NewLogger())

	// 1. Existing job is returned
	req := httptest.NewRequest("GET", "/api/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	handler.HandleJobByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got models.CrawlJob
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.JobID != "job-1" || got.State != models.JobStateCompleted {
		t.Errorf("job = %+v", got)
	}

	// 2. Unknown job is a 404
	req = httptest.NewRequest("GET", "/api/jobs/missing", nil)
	rec = httptest.NewRecorder()
	handler.HandleJobByID(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelJobHandler(t *testing.T) {
	storage := newTestStorage(t)
	job := &models.CrawlJob{JobID: "job-1", SeedURL: "https://example.com", State: models.JobStateQueued}
	if err := storage.JobStorage().SaveJob(context.Background(), job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}
	scheduler := &mockScheduler{
		cancelFunc: func(ctx context.Context, jobID string) error {
			stored, err := storage.JobStorage().GetJob(ctx, jobID)
			if err != nil {
				return err
			}
			stored.State = models.JobStateCancelled
			return storage.JobStorage().SaveJob(ctx, stored)
		},
	}
	handler := NewJobHandler(scheduler, storage.JobStorage(), devConfig(), arbor.NewLogger())

	req := httptest.NewRequest("DELETE", "/api/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	handler.HandleJobByID(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response["state"] != string(models.JobStateCancelled) {
		t.Errorf("state = %v, want cancelled", response["state"])
	}
}

func TestListJobsHandler(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	jobs := []*models.CrawlJob{
		{JobID: "job-1", SeedURL: "https://a.example.com", State: models.JobStateQueued},
		{JobID: "job-2", SeedURL: "https://b.example.com", State: models.JobStateCompleted},
		{JobID: "job-3", SeedURL: "https://c.example.com", State: models.JobStateQueued},
	}
	for _, job := range jobs {
		if err := storage.JobStorage().SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}
	}
	handler := NewJobHandler(&mockScheduler{}, storage.JobStorage(), devConfig(), arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/jobs?state=queued", nil)
	rec := httptest.NewRecorder()
	handler.ListJobsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var response struct {
		Jobs   []*models.CrawlJob `json:"jobs"`
		Counts map[string]int     `json:"counts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Jobs) != 2 {
		t.Errorf("got %d queued jobs, want 2", len(response.Jobs))
	}
	if response.Counts["queued"] != 2 || response.Counts["completed"] != 1 {
		t.Errorf("counts = %v", response.Counts)
	}
}
