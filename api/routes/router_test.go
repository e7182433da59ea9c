package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cartwatch/internal/backup"
	"github.com/angelmondragon/cartwatch/internal/cart"
	"github.com/angelmondragon/cartwatch/internal/cron"
	"github.com/angelmondragon/cartwatch/pkg/config"
	"github.com/angelmondragon/cartwatch/pkg/db"
	pkgerrors "github.com/angelmondragon/cartwatch/pkg/errors"
	"github.com/angelmondragon/cartwatch/pkg/logger"
	"github.com/angelmondragon/cartwatch/pkg/metrics"
	"github.com/angelmondragon/cartwatch/pkg/migrate"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type testServer struct {
	handler http.Handler
	dbPath  string
	job     *backup.Job
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cart.db")

	cfg := &config.Config{
		App:    config.AppConfig{Env: config.AppEnvDev},
		DB:     config.DBConfig{Driver: config.DriverSQLite, Path: dbPath},
		Backup: config.BackupConfig{Dir: filepath.Join(dir, "backups"), Retention: 7 * 24 * time.Hour},
	}
	client, err := db.New(ctx, cfg.DB, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	sqlDB, err := client.SQLDB()
	require.NoError(t, err)
	_, err = migrate.Up(ctx, sqlDB, client.Driver())
	require.NoError(t, err)

	logg := logger.Nop()
	svc, err := cart.NewService(cart.NewRepository(client.DB()), client, logg)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	job, err := backup.NewJob(backup.JobParams{
		Logger:    logg,
		Metrics:   metrics.NewBackupMetrics(reg),
		Source:    dbPath,
		Dir:       cfg.Backup.Dir,
		Retention: cfg.Backup.Retention,
	})
	require.NoError(t, err)
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(job),
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	handler := NewRouter(Params{
		Config:    cfg,
		Logger:    logg,
		DB:        client,
		Carts:     svc,
		Backups:   job,
		Scheduler: scheduler,
		Gatherer:  reg,
	})
	return &testServer{handler: handler, dbPath: dbPath, job: job}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestCartLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/offers", map[string]any{
		"cart_name": "kitchen", "name": "Kettle", "price": "10,00 zł", "link": "https://shop/kettle",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var offer cart.OfferDTO
	require.NoError(t, json.Unmarshal(env.Data, &offer))

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/offers", map[string]any{
		"cart_name": "kitchen", "name": "Toaster", "price": "5,50 zł", "link": "https://shop/toaster",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/carts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var carts []cart.CartDTO
	require.NoError(t, json.Unmarshal(env.Data, &carts))
	require.Len(t, carts, 1)
	assert.Equal(t, "kitchen", carts[0].Name)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec, env = srv.do(t, http.MethodGet, "/api/v1/carts/"+itoa(offer.CartID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Name   string          `json:"name"`
		Offers []cart.OfferDTO `json:"offers"`
		Total  string          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "kitchen", view.Name)
	assert.Len(t, view.Offers, 2)
	assert.Equal(t, "15.5", view.Total)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/carts/"+itoa(offer.CartID)+"/offers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var offers []cart.OfferDTO
	require.NoError(t, json.Unmarshal(env.Data, &offers))
	assert.Len(t, offers, 2)

	rec, _ = srv.do(t, http.MethodDelete, "/api/v1/offers/"+itoa(offer.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = srv.do(t, http.MethodDelete, "/api/v1/carts/"+itoa(offer.CartID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = srv.do(t, http.MethodDelete, "/api/v1/carts/"+itoa(offer.CartID), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeNotFound), env.Error.Code)
}

func TestCreateCartAndConflict(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodPost, "/api/v1/carts", map[string]any{"name": "garden"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/carts", map[string]any{"name": "garden"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), env.Error.Code)
}

func TestValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	rec, env := srv.do(t, http.MethodPost, "/api/v1/offers", map[string]any{"name": "Kettle"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code)
	assert.Contains(t, env.Error.Details, "price")
	assert.Contains(t, env.Error.Details, "link")

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/offers", map[string]any{"name": "a", "price": "1", "link": "l", "unknown": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/carts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = srv.do(t, http.MethodPost, "/api/v1/offers", map[string]any{"name": "bad", "price": "call us", "link": "https://l"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = srv.do(t, http.MethodGet, "/api/v1/carts/1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unparsable price surfaces instead of vanishing")
}

func TestBackupEndpoints(t *testing.T) {
	srv := newTestServer(t)
	_, _ = srv.do(t, http.MethodPost, "/api/v1/carts", map[string]any{"name": "snap"})

	rec, env := srv.do(t, http.MethodPost, "/api/v1/backups/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var status backup.Status
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, backup.StateIdle, status.State)
	require.NotNil(t, status.LastSnapshot)

	rec, env = srv.do(t, http.MethodGet, "/api/v1/backups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview struct {
		Snapshots []backup.Snapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &overview))
	require.Len(t, overview.Snapshots, 1)

	require.NoError(t, os.Remove(srv.dbPath))
	rec, env = srv.do(t, http.MethodPost, "/api/v1/backups/run", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeBackup), env.Error.Code)
}

func TestBackupsDisabled(t *testing.T) {
	handler := NewRouter(Params{
		Config: &config.Config{},
		Logger: logger.Nop(),
		DB:     okPinger{},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/backups", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, config.AppEnvDev, rec.Header().Get("X-Cartwatch-Env"))

	rec, _ = srv.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, _ = srv.do(t, http.MethodPost, "/api/v1/backups/run", nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	srv.handler.ServeHTTP(mrec, req)
	assert.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "cartwatch_job_success_total")
	assert.Contains(t, mrec.Body.String(), "cartwatch_backup_last_snapshot_bytes")
}

func TestReadyReportsFailingDependency(t *testing.T) {
	handler := NewRouter(Params{
		Config: &config.Config{},
		Logger: logger.Nop(),
		DB:     failingPinger{},
	})
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
