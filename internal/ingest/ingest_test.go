package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pairwatch/internal/model"
)

type fakeStore struct {
	mu    sync.Mutex
	ticks []model.Tick
	err   error
}

func (f *fakeStore) AppendTick(t model.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ticks = append(f.ticks, t)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ticks)
}

func TestReplayer_Run(t *testing.T) {
	lines := []string{
		`{"e":"trade","s":"BTCUSDT","T":1714557600000,"p":"100","q":"1"}`,
		`garbage line`,
		`{"stream":"ethusdt@trade","data":{"e":"trade","s":"ETHUSDT","T":1714557601000,"p":"3000","q":"2"}}`,
		``,
		`{"symbol":"BTCUSDT","ts":"2024-05-01T10:00:02Z","price":101,"size":3}`,
	}
	path := filepath.Join(t.TempDir(), "replay.ndjson")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("write replay file: %v", err)
	}

	store := &fakeStore{}
	r := NewReplayer(path, store)

	var decodeErrs int
	r.OnDecodeError = func() { decodeErrs++ }

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.count() != 3 {
		t.Errorf("expected 3 ticks persisted, got %d", store.count())
	}
	if decodeErrs != 1 {
		t.Errorf("expected 1 decode error, got %d", decodeErrs)
	}
}

func TestReplayer_StoreFailureDropsAndContinues(t *testing.T) {
	lines := []string{
		`{"e":"trade","s":"BTCUSDT","T":1714557600000,"p":"100","q":"1"}`,
		`{"e":"trade","s":"BTCUSDT","T":1714557601000,"p":"101","q":"1"}`,
	}
	path := filepath.Join(t.TempDir(), "replay.ndjson")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("write replay file: %v", err)
	}

	store := &fakeStore{err: errors.New("disk full")}
	r := NewReplayer(path, store)

	var writeErrs int
	r.OnWriteError = func() { writeErrs++ }

	// Storage failure drops ticks but never aborts the run.
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if writeErrs != 2 {
		t.Errorf("expected 2 write errors, got %d", writeErrs)
	}
}

func TestReplayer_MissingFile(t *testing.T) {
	r := NewReplayer(filepath.Join(t.TempDir(), "absent.ndjson"), &fakeStore{})
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIngestor_LiveStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := []string{
		`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","T":1714557600000,"p":"100","q":"1"}}`,
		`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","T":1714557601000,"p":"101","q":"2"}}`,
		`malformed`,
		`{"stream":"ethusdt@trade","data":{"e":"trade","s":"ETHUSDT","T":1714557602000,"p":"3000","q":"1"}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	store := &fakeStore{}
	ing := New(Config{
		BaseURL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:     []string{"BTCUSDT", "ETHUSDT"},
		ReadTimeout: time.Second,
		JoinTimeout: time.Second,
	}, store)

	var decodeErrs int
	var mu sync.Mutex
	ing.OnDecodeError = func() {
		mu.Lock()
		decodeErrs++
		mu.Unlock()
	}

	ing.Start()
	defer ing.Stop()

	waitFor(t, 3*time.Second, func() bool { return store.count() == 3 })
	if st := ing.State(); st != StateStreaming {
		t.Errorf("expected streaming state, got %s", st)
	}
	mu.Lock()
	if decodeErrs != 1 {
		t.Errorf("expected 1 decode error, got %d", decodeErrs)
	}
	mu.Unlock()
}

func TestIngestor_StopBoundedAndIdle(t *testing.T) {
	// Nothing listens here: the ingestor cycles Connecting → Backoff.
	store := &fakeStore{}
	ing := New(Config{
		BaseURL:     "ws://127.0.0.1:1",
		Symbols:     []string{"BTCUSDT"},
		Backoff:     50 * time.Millisecond,
		JoinTimeout: time.Second,
	}, store)

	ing.Start()
	waitFor(t, 2*time.Second, func() bool {
		st := ing.State()
		return st == StateConnecting || st == StateBackoff
	})

	start := time.Now()
	ing.Stop()
	if elapsed := time.Since(start); elapsed > 1500*time.Millisecond {
		t.Errorf("stop took %v, expected bounded join", elapsed)
	}

	waitFor(t, time.Second, func() bool { return ing.State() == StateIdle })
}

func TestIngestor_StartIdempotent(t *testing.T) {
	store := &fakeStore{}
	ing := New(Config{
		BaseURL:     "ws://127.0.0.1:1",
		Symbols:     []string{"BTCUSDT"},
		Backoff:     50 * time.Millisecond,
		JoinTimeout: time.Second,
	}, store)

	ing.Start()
	ing.Start() // must be a no-op while running
	ing.Stop()

	// Stop again is also a no-op.
	ing.Stop()

	// Restart after stop works.
	ing.Start()
	ing.Stop()
}

func TestIngestor_StreamURL(t *testing.T) {
	ing := New(Config{
		BaseURL: "wss://fstream.binance.com",
		Symbols: []string{"BTCUSDT", "ETHUSDT"},
	}, &fakeStore{})

	want := "wss://fstream.binance.com/stream?streams=btcusdt@trade/ethusdt@trade"
	if got := ing.streamURL(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
