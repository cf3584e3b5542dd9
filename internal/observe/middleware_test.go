package observe

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup creates metrics and tracing for middleware tests.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)
	tp, exp := newTestTracerProvider(t)
	useGlobalTracerProvider(t, tp)
	return m, reader, exp
}

// testMux mimics the app routes the middleware normally wraps.
func testMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/results", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v1/sessions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v1/results.xlsx", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return mux
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_SetsCorrelationID(t *testing.T) {
	m, _, _ := testSetup(t)

	var captured string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
	}))
	rec := serve(h, httptest.NewRequest("GET", "/v1/results", nil))

	if len(captured) != 32 {
		t.Fatalf("correlation ID = %q, want 32 hex characters", captured)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != captured {
		t.Errorf("X-Correlation-ID = %q, want %q", got, captured)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _, _ := testSetup(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var captured string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
	}))
	req := httptest.NewRequest("GET", "/v1/results", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := serve(h, req)

	if captured != traceID {
		t.Errorf("correlation ID = %q, want %q", captured, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
	if got := rec.Header().Get("traceparent"); !strings.Contains(got, traceID) {
		t.Errorf("response traceparent = %q, want it to carry %s", got, traceID)
	}
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	m, reader, exp := testSetup(t)
	h := Middleware(m)(testMux())

	serve(h, httptest.NewRequest("GET", "/v1/sessions/a1", nil))
	serve(h, httptest.NewRequest("GET", "/v1/sessions/b2", nil))
	serve(h, httptest.NewRequest("GET", "/nowhere", nil))

	met := findMetric(collect(t, reader), "phonescan.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status")
		counts[route.AsString()+" "+status.AsString()] += dp.Count
	}
	want := map[string]uint64{
		"GET /v1/sessions/{id} 200": 2,
		"unmatched 404":             1,
	}
	for k, n := range want {
		if counts[k] != n {
			t.Errorf("count[%q] = %d, want %d (all: %v)", k, counts[k], n, counts)
		}
	}

	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("recorded %d spans, want 3", len(spans))
	}
	if spans[0].Name != "GET /v1/sessions/a1" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var route string
	for _, kv := range spans[0].Attributes {
		if kv.Key == "http.route" {
			route = kv.Value.AsString()
		}
	}
	if route != "GET /v1/sessions/{id}" {
		t.Errorf("http.route = %q", route)
	}
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	m, _, exp := testSetup(t)
	h := Middleware(m)(testMux())

	if rec := serve(h, httptest.NewRequest("GET", "/v1/results.xlsx", nil)); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	serve(h, httptest.NewRequest("GET", "/v1/results", nil))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("500 span status = %v, want Error", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Unset {
		t.Errorf("200 span status = %v, want Unset", spans[1].Status.Code)
	}
}

func TestMiddleware_LogLevels(t *testing.T) {
	m, _, _ := testSetup(t)
	var buf bytes.Buffer
	captureDefaultLogger(t, &buf)
	h := Middleware(m)(testMux())

	serve(h, httptest.NewRequest("GET", "/metrics", nil))
	if buf.Len() != 0 {
		t.Errorf("scrape logged at info: %q", buf.String())
	}

	req := httptest.NewRequest("GET", "/v1/results", nil)
	req.Header.Set("Upgrade", "WebSocket")
	serve(h, req)
	out := buf.String()
	for _, want := range []string{"request completed", `route="GET /v1/results"`, "status=200", "websocket=true"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}

	buf.Reset()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	serve(h, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(buf.String(), "level=DEBUG") {
		t.Errorf("scrape not logged at debug: %q", buf.String())
	}
}

func TestMiddleware_UnwrapExposesWriter(t *testing.T) {
	m, _, _ := testSetup(t)

	var unwrapped http.ResponseWriter
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Flush through ResponseController: %v", err)
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			t.Error("wrapped writer does not implement Unwrap")
			return
		}
		unwrapped = u.Unwrap()
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/scan", nil))
	if unwrapped != rec {
		t.Error("Unwrap did not return the original ResponseWriter")
	}
}

func TestStatusRecorder_DefaultsToOK(t *testing.T) {
	t.Parallel()

	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, err := rec.Write([]byte("{}")); err != nil {
		t.Fatal(err)
	}
	if rec.status != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.status)
	}
	rec.WriteHeader(http.StatusTeapot)
	if rec.status != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.status)
	}
}
