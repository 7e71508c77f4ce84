package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/regimport/internal/application"
	"github.com/JonMunkholm/regimport/internal/config"
	"github.com/JonMunkholm/regimport/internal/core"
	"github.com/JonMunkholm/regimport/internal/sink"
)

const ddvCSV = "Planta,Nombre Agente,Fecha,DDVV(kWh)\nP1,A1,2024-01-15,100\nP2,A2,pendiente,200\n"

type testEnv struct {
	server *Server
	mem    *sink.Memory
}

func newTestEnv(t *testing.T, apiKeys ...string) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{UploadMaxFileSize: 1 << 20, APIKeys: apiKeys},
		Source: config.SourceConfig{HeaderSearchRows: 20, Encoding: "utf-8", Delimiter: "auto"},
		Import: config.ImportConfig{BatchSize: 100, MaxConcurrent: 1, MaxWaitTime: 50 * time.Millisecond},
	}
	reg, err := application.LoadRegistry("")
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	mem := sink.NewMemory()
	svc := application.NewWithSink(cfg, reg, mem, core.NewMetrics(promReg), nil)
	return &testEnv{server: NewServer(svc, cfg.Server, promReg), mem: mem}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename, body string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// ---------------------------------------------------------------------------
// Read-only routes
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestLatestRun_NoneYet(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTables_Empty(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []core.TableSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	assert.Len(t, summaries, 7)
	for _, s := range summaries {
		assert.False(t, s.Exists, s.Table)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"imports":{"active":0,"available":1,"max_concurrent":1,"runs":[]},"tables":7}`, rec.Body.String())
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

func TestImport_CSV(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "DDV Verificada.csv", ddvCSV, map[string]string{"batch_size": "1"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var run core.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "DDV Verificada.csv", run.Source)
	require.Len(t, run.Sheets, 1)
	sheet := run.Sheets[0]
	assert.Equal(t, "ddv_verificada", sheet.Table)
	assert.Equal(t, 2, sheet.Rows)
	assert.Equal(t, []string{"Column 'fecha_dia' has 1 invalid dates"}, sheet.Report.Issues)
	assert.Equal(t, 2, sheet.Load.Batches, "two rows at batch size 1")

	n, err := env.mem.CountRows(context.Background(), "ddv_verificada")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ddv_verificada"`)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<td>ddv_verificada</td><td>2</td>")
	assert.Contains(t, rec.Body.String(), "Latest run")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `regimport_rows_loaded_total{table="ddv_verificada"} 2`)
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name:     "unsupported file type",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "report.pdf", "%PDF", nil) },
			wantCode: http.StatusUnsupportedMediaType,
			wantErr:  "SRC001",
		},
		{
			name:     "bad batch size",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "a.csv", ddvCSV, map[string]string{"batch_size": "0"}) },
			wantCode: http.StatusBadRequest,
		},
		{
			name: "no file field",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader("x=1"))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return req
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "big.csv", strings.Repeat("a,b\n", 300_000), nil)
			},
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  "SRC005",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(tt.req(t))
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Contains(t, rec.Body.String(), tt.wantErr)
			}
		})
	}
}

func TestImport_RequiresAPIKey(t *testing.T) {
	env := newTestEnv(t, "secret")

	rec := env.do(uploadRequest(t, "DDV Verificada.csv", ddvCSV, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := uploadRequest(t, "DDV Verificada.csv", ddvCSV, nil)
	req.Header.Set("X-API-Key", "secret")
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"RUN001", http.StatusServiceUnavailable},
		{"RUN005", http.StatusConflict},
		{"SRC001", http.StatusUnsupportedMediaType},
		{"SRC004", http.StatusUnprocessableEntity},
		{"SRC005", http.StatusRequestEntityTooLarge},
		{"SNK001", http.StatusBadGateway},
		{"ERR000", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.code); got != tt.want {
			t.Errorf("statusFor(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" DDV Verificada, ,Mapeo ")
	assert.Equal(t, []string{"DDV Verificada", "Mapeo"}, got)
	assert.Nil(t, splitList(""))
}
