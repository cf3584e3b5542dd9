package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/phonescan/internal/app"
	"github.com/MrWong99/phonescan/internal/config"
	"github.com/MrWong99/phonescan/internal/results"
	"github.com/MrWong99/phonescan/pkg/provider/ocr"
	"github.com/MrWong99/phonescan/pkg/provider/ocr/mock"
)

// testConfig returns the default config with a small progress interval.
func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Scan.ProgressEvery = 5
	return cfg
}

type testApp struct {
	app   *app.App
	store *results.MemoryStore
	srv   *httptest.Server
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...app.Option) *testApp {
	t.Helper()
	store := results.NewMemoryStore()
	opts = append([]app.Option{
		app.WithStore(store),
		app.WithMetrics(testMetrics(t)),
		app.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "# metrics\n")
		})),
	}, opts...)

	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown(context.Background())
	})
	return &testApp{app: a, store: store, srv: srv}
}

func (ta *testApp) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ta.srv.URL, "http") + "/v1/scan"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) app.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var msg app.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg app.ClientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestNew_DefaultsToMemoryStoreWithoutInjection(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if _, ok := a.Store().(*results.MemoryStore); !ok {
		t.Errorf("Store() = %T, want *results.MemoryStore", a.Store())
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNew_RecognizerNeedsRegistry(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Recognizer.Name = "tesseract"
	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("expected error for recognizer without registry")
	}
}

func TestNew_BuildsRecognizerFromRegistry(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Recognizer = config.RecognizerConfig{
		ProviderEntry: config.ProviderEntry{Name: "primary"},
		Fallbacks:     []config.ProviderEntry{{Name: "backup"}},
	}
	primary := &mock.Provider{RecognizeErr: errors.New("down")}
	backup := &mock.Provider{Frames: [][]string{{phoneText}}}

	reg := config.NewRegistry()
	reg.RegisterRecognizer("primary", func(config.ProviderEntry) (ocr.Provider, error) { return primary, nil })
	reg.RegisterRecognizer("backup", func(config.ProviderEntry) (ocr.Provider, error) { return backup, nil })

	ta := newTestApp(t, cfg, app.WithRegistry(reg))
	conn := ta.dial(t)
	readMsg(t, conn) // session

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, []byte("\x89PNG\r\n\x1a\nfake")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Recognized frame 0 is neither a result nor a progress tick, so send a
	// text frame to get a deterministic reply.
	writeMsg(t, conn, app.ClientMessage{Type: "bogus"})
	if msg := readMsg(t, conn); msg.Type != app.MsgError {
		t.Fatalf("got %+v, want error for bogus type", msg)
	}

	if primary.CallCount() != 1 || backup.CallCount() != 1 {
		t.Errorf("calls = primary %d backup %d, want 1 and 1", primary.CallCount(), backup.CallCount())
	}
	if ct := backup.RecognizeCalls[0].Image.ContentType; ct != "image/png" {
		t.Errorf("ContentType = %q, want image/png", ct)
	}

	resp, err := http.Get(ta.srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", resp.StatusCode)
	}
}

func TestStream_ScanToResult(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	conn := ta.dial(t)

	hello := readMsg(t, conn)
	if hello.Type != app.MsgSession || hello.SessionID == "" {
		t.Fatalf("first message = %+v, want session", hello)
	}
	if hello.Settings == nil || hello.Settings.Threshold != 10 || hello.Settings.Horizon != 30 {
		t.Errorf("settings = %+v", hello.Settings)
	}

	var got []app.ServerMessage
	for i := 0; i < 11; i++ {
		writeMsg(t, conn, app.ClientMessage{Type: app.MsgFrame, Texts: []string{phoneText}})
		// Frames 4 and 9 produce progress, frame 10 the result.
		if i == 4 || i == 9 || i == 10 {
			got = append(got, readMsg(t, conn))
		}
	}

	if got[0].Type != app.MsgProgress || got[0].Frame != 4 || got[0].Best != "5551234567" || got[0].BestCount != 4 {
		t.Errorf("progress #1 = %+v", got[0])
	}
	if got[1].Type != app.MsgProgress || got[1].Frame != 9 {
		t.Errorf("progress #2 = %+v", got[1])
	}
	res := got[2]
	if res.Type != app.MsgResult || res.Result == nil {
		t.Fatalf("third message = %+v, want result", res)
	}
	if res.Result.Raw != "5551234567" || res.Result.Sightings != 11 || res.Frame != 10 || !res.Finished {
		t.Errorf("result = %+v (frame %d finished %v)", res.Result, res.Frame, res.Finished)
	}
	if res.Result.Digits != "5551234567" || res.Result.Valid {
		t.Errorf("formatted = %+v, want digits of an invalid 555 number", res.Result.Formatted)
	}

	// Further frames are refused until the client rejects or resumes.
	writeMsg(t, conn, app.ClientMessage{Type: app.MsgFrame, Texts: []string{phoneText}})
	if msg := readMsg(t, conn); msg.Type != app.MsgError || !strings.Contains(msg.Error, "finished") {
		t.Errorf("after result got %+v, want finished error", msg)
	}

	writeMsg(t, conn, app.ClientMessage{Type: app.MsgReject, Number: "5551234567"})
	if msg := readMsg(t, conn); msg.Type != app.MsgSession || msg.Finished {
		t.Errorf("after reject got %+v, want open session", msg)
	}

	recs, err := ta.store.List(context.Background(), results.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].SessionID != hello.SessionID {
		t.Errorf("stored = %+v", recs)
	}

	resp, err := http.Get(ta.srv.URL + "/v1/results?limit=5")
	if err != nil {
		t.Fatalf("GET /v1/results: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Results []results.Record `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].Number != "5551234567" {
		t.Errorf("GET /v1/results = %+v", body.Results)
	}
}

func TestStream_ContinueAfterResultStaysOpen(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Stabilizer.Threshold = 1
	cfg.Scan.ContinueAfterResult = true
	ta := newTestApp(t, cfg)
	conn := ta.dial(t)
	readMsg(t, conn)

	// Threshold 1 makes every second frame a result.
	for want := int64(1); want <= 3; want += 2 {
		writeMsg(t, conn, app.ClientMessage{Type: app.MsgFrame, Texts: []string{phoneText}})
		writeMsg(t, conn, app.ClientMessage{Type: app.MsgFrame, Texts: []string{phoneText}})
		msg := readMsg(t, conn)
		if msg.Type != app.MsgResult || msg.Frame != want || msg.Finished {
			t.Fatalf("got %+v, want open result at frame %d", msg, want)
		}
	}
}

func TestStream_InvalidMessages(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	conn := ta.dial(t)
	readMsg(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tests := []struct {
		name    string
		typ     websocket.MessageType
		data    string
		wantErr string
	}{
		{name: "not json", typ: websocket.MessageText, data: "{", wantErr: "invalid message"},
		{name: "unknown type", typ: websocket.MessageText, data: `{"type":"zoom"}`, wantErr: "unknown message type"},
		{name: "reject without number", typ: websocket.MessageText, data: `{"type":"reject"}`, wantErr: "needs a number"},
		{name: "image without recognizer", typ: websocket.MessageBinary, data: "\xff\xd8\xff", wantErr: "no recognizer"},
	}
	for _, tc := range tests {
		if err := conn.Write(ctx, tc.typ, []byte(tc.data)); err != nil {
			t.Fatalf("%s: Write: %v", tc.name, err)
		}
		msg := readMsg(t, conn)
		if msg.Type != app.MsgError || !strings.Contains(msg.Error, tc.wantErr) {
			t.Errorf("%s: got %+v, want error containing %q", tc.name, msg, tc.wantErr)
		}
	}

	// The connection survives bad input.
	writeMsg(t, conn, app.ClientMessage{Type: app.MsgResume})
	if msg := readMsg(t, conn); msg.Type != app.MsgSession {
		t.Errorf("resume got %+v, want session", msg)
	}
}

func TestStream_SessionCap(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Scan.MaxSessions = 1
	ta := newTestApp(t, cfg)
	conn := ta.dial(t)
	readMsg(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ta.srv.URL, "http") + "/v1/scan"
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("second Dial succeeded, want refusal")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}
}

func TestStream_DisconnectStopsSession(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())
	conn := ta.dial(t)
	readMsg(t, conn)
	if ta.app.Sessions().Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ta.app.Sessions().Len())
	}

	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for ta.app.Sessions().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not stopped after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, testConfig())

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/healthz", http.StatusOK, `"ok"`},
		{"/readyz", http.StatusOK, `"results":"ok"`},
		{"/metrics", http.StatusOK, "# metrics"},
		{"/v1/results", http.StatusOK, `"results"`},
		{"/v1/results?limit=x", http.StatusBadRequest, "limit"},
		{"/v1/sessions", http.StatusOK, `"sessions"`},
		{"/v1/results.xlsx", http.StatusOK, "PK"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(ta.srv.URL + tc.path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if !strings.Contains(string(body), tc.wantBody) {
				t.Errorf("body = %.200q, want it to contain %q", body, tc.wantBody)
			}
		})
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	old := testConfig()
	lv := new(slog.LevelVar)
	ta := newTestApp(t, old, app.WithLogLevel(lv))

	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	updated.Stabilizer.Threshold = 3
	updated.Scan.MaxSessions = 1
	updated.Results.Driver = config.DriverSQLite

	ta.app.ApplyConfig(old, updated)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lv.Level())
	}
	if got := ta.app.Sessions().Settings().Threshold; got != 3 {
		t.Errorf("threshold = %d, want 3", got)
	}
	ctx := context.Background()
	if _, err := ta.app.Sessions().Start(ctx, "test"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := ta.app.Sessions().Start(ctx, "test"); !errors.Is(err, app.ErrTooManySessions) {
		t.Errorf("Start over new cap = %v, want ErrTooManySessions", err)
	}
}

func TestShutdown_RespectsDeadline(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown() = %v, want context.Canceled", err)
	}
	// Second call is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() = %v, want nil", err)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := app.SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
