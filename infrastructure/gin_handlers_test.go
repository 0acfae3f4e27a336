package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
	"github.com/vitovidale/autosplit-service/usecase"
)

type fakeWebhookProcessor struct {
	calls   []domain.WebhookEnvelope
	results []usecase.EventResult
	err     error
}

func (f *fakeWebhookProcessor) Execute(_ context.Context, env domain.WebhookEnvelope) ([]usecase.EventResult, error) {
	f.calls = append(f.calls, env)
	return f.results, f.err
}

type fakeJobLister struct {
	jobs []domain.VideoJob
	job  *domain.VideoJob
	err  error
}

func (f *fakeJobLister) Execute(context.Context, string) ([]domain.VideoJob, error) {
	return f.jobs, f.err
}

func (f *fakeJobLister) Get(context.Context, string, string) (*domain.VideoJob, error) {
	return f.job, f.err
}

func TestVerifyHandler(t *testing.T) {
	h := NewWebhookHandlers(&fakeWebhookProcessor{}, "verify-me", zap.NewNop())
	r := gin.New()
	r.GET("/webhook", h.VerifyHandler)

	tests := []struct {
		name  string
		query string
		want  int
		body  string
	}{
		{"missing mode", "?hub.challenge=42&hub.verify_token=verify-me", http.StatusBadRequest, ""},
		{"missing challenge", "?hub.mode=subscribe&hub.verify_token=verify-me", http.StatusBadRequest, ""},
		{"wrong token", "?hub.mode=subscribe&hub.challenge=42&hub.verify_token=nope", http.StatusForbidden, ""},
		{"ok", "?hub.mode=subscribe&hub.challenge=42&hub.verify_token=verify-me", http.StatusOK, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook"+tt.query, nil))
			assert.Equal(t, tt.want, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestEventHandler(t *testing.T) {
	post := func(h *WebhookHandlers, body string) *httptest.ResponseRecorder {
		r := gin.New()
		r.POST("/webhook", h.EventHandler)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
		return w
	}

	t.Run("invalid json", func(t *testing.T) {
		proc := &fakeWebhookProcessor{}
		w := post(NewWebhookHandlers(proc, "", zap.NewNop()), "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, proc.calls)
	})

	t.Run("foreign object", func(t *testing.T) {
		proc := &fakeWebhookProcessor{}
		w := post(NewWebhookHandlers(proc, "", zap.NewNop()), `{"object":"page","entry":[]}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "unrecognized POST to webhook", w.Body.String())
		assert.Empty(t, proc.calls)
	})

	t.Run("accepted even when events fail", func(t *testing.T) {
		proc := &fakeWebhookProcessor{
			results: []usecase.EventResult{{Event: domain.IncomingEvent{Kind: domain.EventText}, Outcome: usecase.OutcomeError}},
			err:     errors.New("queue down"),
		}
		body := `{"object":"instagram","entry":[{"id":"1","time":1,"messaging":[{"sender":{"id":"s"},"recipient":{"id":"r"},"timestamp":1,"message":{"mid":"m","text":"hi"}}]}]}`
		w := post(NewWebhookHandlers(proc, "", zap.NewNop()), body)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "EVENT_RECEIVED", w.Body.String())
		require.Len(t, proc.calls, 1)
		assert.Equal(t, "s", proc.calls[0].Entry[0].Messaging[0].Sender.ID)
	})
}

func jobRouter(h *JobHandlers) *gin.Engine {
	r := gin.New()
	auth := func(c *gin.Context) { c.Set(contextUserID, "u-1"); c.Next() }
	r.GET("/api/jobs", auth, h.ListJobsHandler)
	r.GET("/api/jobs/:id", auth, h.GetJobHandler)
	r.GET("/outputs/:jobID", h.OutputHandler)
	return r
}

func TestJobHandlers(t *testing.T) {
	files := &LocalFileStore{OutputsDir: t.TempDir()}

	t.Run("list", func(t *testing.T) {
		lister := &fakeJobLister{jobs: []domain.VideoJob{{ID: "j-1", Status: domain.VideoStatusCompleted, CreatedAt: time.Now()}}}
		w := httptest.NewRecorder()
		jobRouter(NewJobHandlers(lister, files, zap.NewNop())).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Jobs []domain.VideoJob `json:"jobs"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Jobs, 1)
		assert.Equal(t, "j-1", body.Jobs[0].ID)
	})

	t.Run("get not owned", func(t *testing.T) {
		lister := &fakeJobLister{err: domain.ErrNotFound}
		w := httptest.NewRecorder()
		jobRouter(NewJobHandlers(lister, files, zap.NewNop())).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/j-9", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("get failure", func(t *testing.T) {
		lister := &fakeJobLister{err: errors.New("db down")}
		w := httptest.NewRecorder()
		jobRouter(NewJobHandlers(lister, files, zap.NewNop())).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/j-9", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestOutputHandler(t *testing.T) {
	dir := t.TempDir()
	files := &LocalFileStore{OutputsDir: dir}
	const jobID = "0b6f2c3e-8a51-4f7a-9a58-6c1f0e2d9b11"
	require.NoError(t, os.WriteFile(filepath.Join(dir, jobID+".mp4"), []byte("mp4-bytes"), 0o644))
	r := jobRouter(NewJobHandlers(&fakeJobLister{}, files, zap.NewNop()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/outputs/"+jobID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mp4-bytes", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/outputs/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/outputs/7d1c7f4a-3f0e-4a57-b0f5-0a3c2b1e9d22", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("refused") }

	serve := func(checks map[string]func(context.Context) error) (int, map[string]string) {
		r := gin.New()
		r.GET("/health", HealthCheck(checks))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		var body map[string]string
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		return w.Code, body
	}

	code, body := serve(map[string]func(context.Context) error{"database": ok, "redis": ok, "rabbitmq": ok})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, "connected", body["redis"])

	code, body = serve(map[string]func(context.Context) error{"database": ok, "redis": down, "rabbitmq": ok})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "DOWN", body["status"])
	assert.Equal(t, "error: refused", body["redis"])
	assert.Equal(t, "connected", body["database"])
}
