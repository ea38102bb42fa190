package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiq/sestemplates"
	"github.com/lattiq/sestemplates/internal/httpapi"
)

type fakeManager struct {
	mu        sync.Mutex
	err       error
	lastList  sestemplates.ListTemplatesRequest
	lastTmpl  sestemplates.TemplateRequest
	lastSend  sestemplates.SendTemplateRequest
	lastDup   sestemplates.DuplicateTemplateRequest
	lastName  string
	lastRgn   string
	callCount int
}

func (f *fakeManager) touch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	return f.err
}

func (f *fakeManager) ListTemplates(_ context.Context, req sestemplates.ListTemplatesRequest) (*sestemplates.TemplateList, error) {
	if err := f.touch(); err != nil {
		return nil, err
	}
	f.lastList = req
	return &sestemplates.TemplateList{Templates: []sestemplates.TemplateMetadata{{Name: "welcome"}}}, nil
}

func (f *fakeManager) GetTemplate(_ context.Context, name, region string) (*sestemplates.TemplateDetails, error) {
	if err := f.touch(); err != nil {
		return nil, err
	}
	f.lastName, f.lastRgn = name, region
	tmpl := sestemplates.Template{Name: name, Subject: "Hi {{name}}", HTMLBody: "<p>{{name}}, {{offer}}</p>"}
	return &sestemplates.TemplateDetails{Template: tmpl, DynamicFields: sestemplates.TemplateFields(&tmpl)}, nil
}

func (f *fakeManager) CreateTemplate(_ context.Context, req sestemplates.TemplateRequest) error {
	f.lastTmpl = req
	return f.touch()
}

func (f *fakeManager) UpdateTemplate(_ context.Context, req sestemplates.TemplateRequest) error {
	f.lastTmpl = req
	return f.touch()
}

func (f *fakeManager) DeleteTemplate(_ context.Context, name, region string) error {
	f.lastName, f.lastRgn = name, region
	return f.touch()
}

func (f *fakeManager) SendTemplate(_ context.Context, req sestemplates.SendTemplateRequest) (*sestemplates.SendTemplateResult, error) {
	if err := f.touch(); err != nil {
		return nil, err
	}
	f.lastSend = req
	return &sestemplates.SendTemplateResult{MessageID: "0100-abc"}, nil
}

func (f *fakeManager) DuplicateTemplate(_ context.Context, req sestemplates.DuplicateTemplateRequest) error {
	f.lastDup = req
	return f.touch()
}

type testServer struct {
	handler http.Handler
	manager *fakeManager
	metrics *sestemplates.Metrics
}

func newTestServer(t *testing.T, mutate func(*sestemplates.Config)) *testServer {
	t.Helper()

	cfg := sestemplates.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	metrics, err := sestemplates.NewMetrics("test")
	require.NoError(t, err)

	store := sestemplates.NewMemoryStore(sestemplates.WithCleanupInterval(0))
	limiter := sestemplates.NewRateLimiter(cfg.RateLimit, store, metrics)
	t.Cleanup(func() { _ = limiter.Close() })

	manager := &fakeManager{}
	srv := httpapi.New(httpapi.Options{
		Config:  cfg,
		Manager: manager,
		Limiter: limiter,
		Metrics: metrics,
	})

	return &testServer{handler: srv.Handler(), manager: manager, metrics: metrics}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGetTemplate(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/get-template/welcome?region=us-east-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	data := body["data"].(map[string]any)
	assert.Equal(t, "welcome", data["TemplateName"])
	assert.Equal(t, "Hi {{name}}", data["SubjectPart"])
	assert.Equal(t, []any{"name", "offer"}, data["dynamic_fields"])
	assert.Equal(t, "us-east-1", ts.manager.lastRgn)
}

func TestListTemplates(t *testing.T) {
	t.Parallel()

	t.Run("items envelope", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)

		rec := ts.do(t, http.MethodGet, "/api/list-templates?region=eu-west-1&max_items=10&next_token=abc", "")
		require.Equal(t, http.StatusOK, rec.Code)

		items := decode(t, rec)["items"].(map[string]any)
		assert.Len(t, items["TemplatesMetadata"], 1)
		assert.Equal(t, sestemplates.ListTemplatesRequest{Region: "eu-west-1", MaxItems: 10, NextToken: "abc"}, ts.manager.lastList)
	})

	t.Run("max items omitted", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)

		rec := ts.do(t, http.MethodGet, "/api/list-templates?region=eu-west-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, ts.manager.lastList.MaxItems)
	})

	for _, raw := range []string{"abc", "0", "-5", "2147483648", "4294967297"} {
		t.Run("invalid max items "+raw, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, nil)

			rec := ts.do(t, http.MethodGet, "/api/list-templates?region=eu-west-1&max_items="+raw, "")
			require.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "max_items must be a positive integer", decode(t, rec)["error"])
			assert.Zero(t, ts.manager.callCount)
		})
	}
}

func TestWriteOperations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		method  string
		target  string
		body    string
		message string
	}{
		{"create", http.MethodPost, "/api/create-template", `{"template_name":"welcome","subject_part":"Hi","html_part":"<p/>","region":"us-east-1"}`, "Template created successfully"},
		{"update", http.MethodPut, "/api/update-template", `{"template_name":"welcome","subject_part":"Hi","text_part":"t","region":"us-east-1"}`, "Template updated successfully"},
		{"delete", http.MethodDelete, "/api/delete-template/welcome?region=us-east-1", "", "Template deleted successfully"},
		{"duplicate", http.MethodPost, "/api/duplicate-template", `{"source_template_name":"welcome","template_name":"copy","region":"us-east-1"}`, "Template duplicated successfully"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, nil)

			rec := ts.do(t, tt.method, tt.target, tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.message, decode(t, rec)["message"])
		})
	}
}

func TestCreateTemplate_Mapping(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/create-template",
		`{"template_name":"welcome","subject_part":"Hi {{name}}","text_part":"t","html_part":"<b>h</b>","region":"ap-south-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, sestemplates.TemplateRequest{
		Name: "welcome", Subject: "Hi {{name}}", Text: "t", HTML: "<b>h</b>", Region: "ap-south-1",
	}, ts.manager.lastTmpl)
}

func TestSendTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want string
	}{
		{"string data", `"{\"name\":\"Ada\"}"`, `{"name":"Ada"}`},
		{"object data", `{"name":"Ada"}`, `{"name":"Ada"}`},
		{"missing data", `null`, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, nil)

			body := `{"template_name":"welcome","source":"noreply@example.com","to_address":"user@example.com","region":"us-east-1","template_data":` + tt.data + `}`
			rec := ts.do(t, http.MethodPost, "/api/send-template", body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			out := decode(t, rec)
			assert.Equal(t, "Email sent successfully", out["message"])
			assert.Equal(t, "0100-abc", out["message_id"])
			assert.Equal(t, tt.want, ts.manager.lastSend.TemplateData)
			assert.Equal(t, "user@example.com", ts.manager.lastSend.To)
		})
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()

	t.Run("provider message passed through", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)
		ts.manager.err = &sestemplates.ProviderError{Provider: "aws_ses", Op: "GetTemplate", Message: "Template welcome does not exist."}

		rec := ts.do(t, http.MethodGet, "/api/get-template/welcome?region=us-east-1", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, map[string]any{"error": "Template welcome does not exist."}, decode(t, rec))
	})

	t.Run("validation message names the field", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)
		ts.manager.err = sestemplates.NewValidationError("template_name", "template_name is required")

		rec := ts.do(t, http.MethodPost, "/api/create-template", `{"subject_part":"Hi"}`)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "template_name is required", decode(t, rec)["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t, nil)

		rec := ts.do(t, http.MethodPost, "/api/create-template", `{"template_name":`)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, decode(t, rec)["error"], "invalid request body")
		assert.Zero(t, ts.manager.callCount)
	})
}

func TestRateLimit_General(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, func(c *sestemplates.Config) {
		c.RateLimit.General.Limit = 3
	})

	for i := 0; i < 3; i++ {
		rec := ts.do(t, http.MethodGet, "/api/regions", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := ts.do(t, http.MethodGet, "/api/regions", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests from this IP, please try again later.", decode(t, rec)["error"])
	assert.Equal(t, "900", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code, "non-api routes are not throttled")
}

func TestRateLimit_Send(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, func(c *sestemplates.Config) {
		c.RateLimit.Send.Limit = 2
	})

	body := `{"template_name":"t","source":"a@example.com","to_address":"b@example.com","region":"us-east-1","template_data":"{}"}`
	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/send-template", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/api/send-template", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Email sending rate limit exceeded. Please try again later.", decode(t, rec)["error"])
	assert.Equal(t, 2, ts.manager.callCount)

	rec = ts.do(t, http.MethodGet, "/api/regions", "")
	assert.Equal(t, http.StatusOK, rec.Code, "general window still has capacity")
}

func TestRateLimit_SendCountsAgainstGeneral(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, func(c *sestemplates.Config) {
		c.RateLimit.General.Limit = 2
	})

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodGet, "/api/regions", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	body := `{"template_name":"t","source":"a@example.com","to_address":"b@example.com","region":"us-east-1"}`
	rec := ts.do(t, http.MethodPost, "/api/send-template", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests from this IP, please try again later.", decode(t, rec)["error"])
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"), "general window answered first")
	assert.Zero(t, ts.manager.callCount)
}

func TestRateLimit_Disabled(t *testing.T) {
	t.Parallel()

	manager := &fakeManager{}
	srv := httpapi.New(httpapi.Options{Config: sestemplates.DefaultConfig(), Manager: manager})

	for i := 0; i < 150; i++ {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/regions", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_TrustProxyHeaders(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, func(c *sestemplates.Config) {
		c.RateLimit.General.Limit = 1
		c.Server.TrustProxyHeaders = true
	})

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/regions", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "caller %s has its own window", ip)
	}
}

func TestRegions(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/regions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].([]any)
	require.NotEmpty(t, data)
	assert.Equal(t, map[string]any{"value": "us-east-1", "label": "US East (N. Virginia) us-east-1"}, data[0])
}

func TestAmbientRoutes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = ts.do(t, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	info := decode(t, rec)
	assert.NotEmpty(t, info["version"])
	assert.Equal(t, sestemplates.GetVersionInfo().DevBuild, info["dev_build"])

	_ = ts.do(t, http.MethodGet, "/api/regions", "")
	rec = ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="GET",route="/api/regions",status="200"}`)
}

func TestMiddleware_Headers(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	t.Run("security headers and request id", func(t *testing.T) {
		t.Parallel()
		rec := ts.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		assert.Equal(t, sestemplates.GetVersionInfo().UserAgent(), rec.Header().Get("Server"))
		assert.True(t, strings.HasPrefix(rec.Header().Get("Server"), "sestemplates/"))
	})

	t.Run("incoming request id kept", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	})

	t.Run("cors preflight", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodOptions, "/api/create-template", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "content-type")
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	})
}

func TestStaticFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o600))

	ts := newTestServer(t, func(c *sestemplates.Config) { c.Server.StaticDir = dir })

	rec := ts.do(t, http.MethodGet, "/assets/app.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/templates/welcome", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app")
}

func TestRun_Shutdown(t *testing.T) {
	t.Parallel()

	cfg := sestemplates.DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	srv := httpapi.New(httpapi.Options{Config: cfg, Manager: &fakeManager{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
