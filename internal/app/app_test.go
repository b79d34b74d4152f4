package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/allocation"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/config"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/pipeline"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/reconcile"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/shared/testutil"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/storage"
	ws "github.com/mullenkamp/nz-allo-usage-tools/internal/websocket"
	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// testConfig writes one surface-water permit at W3 with a daily limit of 864
// and three days of metered usage, and points a file-driver config at them
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	permits := []domain.PermitRecord{{
		PermitID:         "P1",
		Exercised:        true,
		Status:           "Issued - Active",
		CommencementDate: "2018-07-01",
		ExpiryDate:       "2019-07-01",
		Activity: domain.Activity{
			ActivityType:   "consumptive take water",
			Feature:        "Surface Water",
			PrimaryPurpose: "Pasture Irrigation",
			Conditions: []domain.Condition{
				{ConditionType: "abstraction", Limit: domain.Limit{Period: "D", Value: 864}},
			},
			Stations: []domain.Station{
				{StationID: "W3", Geometry: domain.Geometry{Coordinates: []float64{172.02, -43.5}}},
			},
		},
	}}
	data, err := json.Marshal(permits)
	require.NoError(t, err)
	permitsPath := filepath.Join(dir, "permits.json")
	require.NoError(t, os.WriteFile(permitsPath, data, 0o644))

	usageDir := filepath.Join(dir, "usage")
	files, err := storage.NewFileStore(permitsPath, usageDir)
	require.NoError(t, err)
	require.NoError(t, files.WriteUsage("W3", []domain.UsageReading{
		{WapID: "W3", Date: time.Date(2018, 9, 1, 0, 0, 0, 0, time.UTC), WaterUse: 100},
		{WapID: "W3", Date: time.Date(2018, 9, 2, 0, 0, 0, 0, time.UTC), WaterUse: 200},
		{WapID: "W3", Date: time.Date(2018, 9, 3, 0, 0, 0, 0, time.UTC), WaterUse: 300},
	}))

	cfg := config.Default()
	cfg.Window = config.WindowConfig{From: "2018-07-01", To: "2019-06-30"}
	cfg.Sources.Driver = "file"
	cfg.Sources.PermitsPath = permitsPath
	cfg.Sources.UsageDir = usageDir
	cfg.Telemetry.MetricExporter = "none"
	cfg.Telemetry.TraceExporter = "none"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*Application, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, logs := testutil.NewTestLogger(t)
	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a, logs
}

func TestPipelineOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Window = config.WindowConfig{From: "2018-07-01", To: "2019-06-30"}
	cfg.Pipeline.SplitMode = "inclusive"
	cfg.Pipeline.MeteredMode = "permit_level"
	cfg.Filter.PermitIDs = []string{"P1"}

	opts, err := PipelineOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, allocation.SplitInclusive, opts.SplitMode)
	assert.Equal(t, reconcile.PermitLevel, opts.MeteredMode)
	assert.Equal(t, time.Date(2018, 7, 1, 0, 0, 0, 0, time.UTC), opts.Window.From)
	assert.Equal(t, opts.Window, opts.Filter.Window)
	assert.Equal(t, []string{"P1"}, opts.Filter.PermitIDs)
	assert.Equal(t, 40000.0, opts.Gapfill.BufferDistance)
	assert.Equal(t, 8, opts.Fetch.Concurrency)
}

func TestPipelineOptionsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad from date", func(c *config.Config) { c.Window.From = "2018-13-01" }},
		{"reversed window", func(c *config.Config) { c.Window = config.WindowConfig{From: "2019-01-01", To: "2018-01-01"} }},
		{"unknown split mode", func(c *config.Config) { c.Pipeline.SplitMode = "halves" }},
		{"unknown metered mode", func(c *config.Config) { c.Pipeline.MeteredMode = "guess" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			_, err := PipelineOptions(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewErrors(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	_, err := New(context.Background(), nil, logger)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Sources.Driver = "ftp"
	_, err = New(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "open storage")

	cfg = testConfig(t)
	cfg.Sources.PermitsPath = filepath.Join(t.TempDir(), "absent.json")
	_, err = New(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "validate file source")

	cfg = testConfig(t)
	cfg.Telemetry.TraceExporter = "jaeger"
	_, err = New(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "initialize telemetry")
}

func TestRunFromFiles(t *testing.T) {
	a, logs := newTestApp(t, testConfig(t))
	assert.True(t, logs.ContainsMessage("application initialized"))

	tbl, err := a.Run(context.Background(), pipeline.Request{
		Datasets:  []domain.DatasetKind{domain.DatasetAllocation},
		Frequency: domain.Monthly,
		GroupBy:   []string{"permit_id"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"permit_id", "date", "total_allo", "sw_allo", "gw_allo"}, tbl.Header())

	var found bool
	for i, row := range tbl.Rows {
		if row.Date.Equal(time.Date(2018, 9, 30, 0, 0, 0, 0, time.UTC)) {
			v, ok := tbl.Value(i, "total_allo")
			require.True(t, ok)
			assert.InDelta(t, 864.0*30, v, 1e-6)
			found = true
		}
	}
	assert.True(t, found, "september row present")
}

func TestHandlerServesTimeseries(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	h := a.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/timeseries?datasets=allocation&freq=M&group_by=permit_id&format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Equal(t, "permit_id,date,total_allo,sw_allo,gw_allo", lines[0])
	assert.Contains(t, rec.Body.String(), "P1,2018-09-30,25920.000,25920.000,0.000")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "prometheus exporter disabled")
}

func TestProgressSocketStreamsRunStages(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	next := func() ws.Message {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var m ws.Message
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}
	require.Equal(t, ws.TypeConnection, next().Type)

	_, err = a.Run(context.Background(), pipeline.Request{
		Datasets:  []domain.DatasetKind{domain.DatasetAllocation},
		Frequency: domain.Monthly,
	})
	require.NoError(t, err)

	stages := map[string]bool{}
	for !stages["allocation"] {
		m := next()
		if m.Type != ws.TypeStage {
			continue
		}
		data, ok := m.Data.(map[string]any)
		require.True(t, ok)
		stages[data["stage"].(string)] = true
		assert.NotEmpty(t, m.TraceID, "events carry the run trace id")
	}
	assert.True(t, stages["catalog"])
	assert.Positive(t, a.Progress.Stats().MessagesSent)
}

func TestStopReleasesResources(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	a, err := New(context.Background(), testConfig(t), logger)
	require.NoError(t, err)

	require.NoError(t, a.Stop(context.Background()))
	assert.True(t, logs.ContainsMessage("application stopped"))
}
