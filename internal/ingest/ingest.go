// Package ingest maintains the live trade-feed connection, normalizes
// inbound messages and appends them to the tick store. A replay variant
// substitutes a line-delimited record file for the socket, reusing the same
// normalization and append path.
package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pairwatch/internal/model"
)

// State is the ingestor lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

const (
	defaultBackoff     = 5 * time.Second
	defaultReadTimeout = 30 * time.Second
	defaultJoinTimeout = 2 * time.Second
)

// Store is the tick sink. Satisfied by *sqlite.Store.
type Store interface {
	AppendTick(t model.Tick) error
}

// Config holds ingestor settings.
type Config struct {
	BaseURL     string   // feed endpoint, e.g. "wss://fstream.binance.com"
	Symbols     []string // instruments to subscribe, e.g. BTCUSDT, ETHUSDT
	Backoff     time.Duration
	ReadTimeout time.Duration
	JoinTimeout time.Duration
}

// Ingestor runs the live feed loop in a background goroutine:
// Idle → Connecting → Streaming → Backoff → Connecting → …, back to Idle on
// Stop. The retry loop is unbounded; the ingestor never gives up while
// running.
type Ingestor struct {
	cfg   Config
	store Store

	state atomic.Int32

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Optional metrics hooks.
	OnTick        func()
	OnDecodeError func()
	OnWriteError  func()
	OnReconnect   func()
}

// New creates an ingestor writing to store.
func New(cfg Config, store Store) *Ingestor {
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}
	return &Ingestor{cfg: cfg, store: store}
}

// State returns the current lifecycle state.
func (ing *Ingestor) State() State {
	return State(ing.state.Load())
}

func (ing *Ingestor) setState(s State) {
	ing.state.Store(int32(s))
}

// Start launches the feed loop. Idempotent while already running.
func (ing *Ingestor) Start() {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	if ing.running {
		log.Println("[ingest] already running, start ignored")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ing.running = true
	ing.cancel = cancel
	ing.done = make(chan struct{})

	go ing.run(ctx, ing.done)
	log.Printf("[ingest] started for %v", ing.cfg.Symbols)
}

// Stop requests shutdown and waits at most the join timeout. A read in
// flight may finish unblocking asynchronously; Stop still returns on time.
func (ing *Ingestor) Stop() {
	ing.mu.Lock()
	if !ing.running {
		ing.mu.Unlock()
		return
	}
	ing.running = false
	cancel := ing.cancel
	done := ing.done
	ing.mu.Unlock()

	cancel()
	select {
	case <-done:
		log.Println("[ingest] stopped")
	case <-time.After(ing.cfg.JoinTimeout):
		log.Println("[ingest] stop join timeout, loop will exit asynchronously")
	}
}

// streamURL builds the combined-stream subscription URL for the configured
// symbols.
func (ing *Ingestor) streamURL() string {
	streams := make([]string, len(ing.cfg.Symbols))
	for i, s := range ing.cfg.Symbols {
		streams[i] = strings.ToLower(s) + "@trade"
	}
	return ing.cfg.BaseURL + "/stream?streams=" + strings.Join(streams, "/")
}

func (ing *Ingestor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer ing.setState(StateIdle)

	url := ing.streamURL()
	for {
		if ctx.Err() != nil {
			return
		}

		ing.setState(StateConnecting)
		log.Printf("[ingest] connecting to %s", url)

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			log.Printf("[ingest] connect error: %v", err)
			if !ing.waitBackoff(ctx) {
				return
			}
			continue
		}

		log.Println("[ingest] connected")
		ing.setState(StateStreaming)

		err = ing.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}

		log.Printf("[ingest] stream error: %v", err)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}
		if !ing.waitBackoff(ctx) {
			return
		}
	}
}

// readLoop reads messages until the connection fails or ctx is cancelled.
// Each read carries a deadline so a silent connection cannot block the
// cancellation check indefinitely; a watcher closes the connection on cancel
// to unblock an in-flight read promptly.
func (ing *Ingestor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(ing.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		ingestRecord(ing.store, msg, ing.OnTick, ing.OnDecodeError, ing.OnWriteError)
	}
}

// waitBackoff sleeps the fixed backoff delay, returning false when cancelled.
func (ing *Ingestor) waitBackoff(ctx context.Context) bool {
	ing.setState(StateBackoff)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(ing.cfg.Backoff):
		return true
	}
}

// ingestRecord is the shared normalize-and-append path used by both the live
// loop and the replayer. Failures never stop ingestion: a malformed record is
// skipped, a failed write drops the tick.
func ingestRecord(store Store, raw []byte, onTick, onDecodeError, onWriteError func()) {
	tick, err := DecodeTick(raw)
	if err != nil {
		log.Printf("[ingest] skipping malformed message: %v", err)
		if onDecodeError != nil {
			onDecodeError()
		}
		return
	}
	if err := store.AppendTick(tick); err != nil {
		log.Printf("[ingest] dropping tick, store write failed: %v", err)
		if onWriteError != nil {
			onWriteError()
		}
		return
	}
	if onTick != nil {
		onTick()
	}
}
