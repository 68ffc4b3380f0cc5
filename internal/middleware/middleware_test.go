package middleware

import (
	"bytes"
	stdlog "log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"media-migrator/internal/metrics"
)

func captureLog(t *testing.T, fn func()) string {
	t.Helper()

	var buf bytes.Buffer
	orig := stdlog.Writer()
	flags := stdlog.Flags()
	stdlog.SetOutput(&buf)
	stdlog.SetFlags(0)
	defer func() {
		stdlog.SetOutput(orig)
		stdlog.SetFlags(flags)
	}()

	fn()
	return buf.String()
}

func TestResponseWriterCapturesStatusAndBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if rw.statusCode != http.StatusAccepted || rec.Code != http.StatusAccepted {
		t.Errorf("status = %d/%d, want first WriteHeader to win", rw.statusCode, rec.Code)
	}
	if rw.bytesWritten != 5 {
		t.Errorf("bytesWritten = %d, want 5", rw.bytesWritten)
	}
}

func TestLoggerMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		config   LoggingConfig
		path     string
		status   int
		wantLine string
	}{
		{name: "api request", config: DefaultLoggingConfig(), path: "/api/migration/status?tenant=a", status: http.StatusOK, wantLine: "[INFO] [http] 10.0.0.1 GET /api/migration/status?tenant=a 200"},
		{name: "server error logs at warn", config: DefaultLoggingConfig(), path: "/api/scan", status: http.StatusInternalServerError, wantLine: "[WARN] [http]"},
		{name: "metrics skipped", config: DefaultLoggingConfig(), path: "/metrics", status: http.StatusOK},
		{name: "health skipped when disabled", config: LoggingConfig{}, path: "/health", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Logger(tt.config)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			out := captureLog(t, func() {
				req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
				req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.1.1")
				handler.ServeHTTP(httptest.NewRecorder(), req)
			})

			if tt.wantLine == "" {
				if out != "" {
					t.Errorf("expected no log output, got %q", out)
				}
				return
			}
			if !strings.Contains(out, tt.wantLine) {
				t.Errorf("log = %q, want it to contain %q", out, tt.wantLine)
			}
		})
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "/api/scan", want: "/api/scan"},
		{input: "a\nb\rc", want: "a b c"},
		{input: "esc\x1b[31mred", want: "esc[31mred"},
		{input: "nul\x00byte", want: "nulbyte"},
		{input: "tab\tkept", want: "tab\tkept"},
	}

	for _, tt := range tests {
		if got := sanitizeLogField(tt.input); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, remote: "9.9.9.9:1", want: "1.2.3.4"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "4.3.2.1"}, remote: "9.9.9.9:1", want: "4.3.2.1"},
		{name: "remote addr", remote: "9.9.9.9:1234", want: "9.9.9.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/migration/{tenant}/pause", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {}).Methods("GET")

	counter := metrics.HTTPRequestsTotal.WithLabelValues("POST", "/api/migration/{tenant}/pause", "200")
	before := testutil.ToFloat64(counter)

	for _, tenant := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodPost, "/api/migration/"+tenant+"/pause", http.NoBody)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("requests recorded under route template = %v, want 3", got)
	}
	health := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")
	if testutil.ToFloat64(health) != 0 {
		t.Error("health check should not be recorded")
	}
}

func TestRouteTemplateUnmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody)
	if got := routeTemplate(req); got != "unmatched" {
		t.Errorf("routeTemplate = %q, want unmatched", got)
	}
}
