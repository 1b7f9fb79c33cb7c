// cmd/feedsim — Demo WebSocket trade feed.
// Broadcasts simulated combined-stream trade frames so pairwatch can run
// end-to-end without exchange connectivity. Frame shape matches the live
// feed:
//
//	{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","T":...,"p":"...","q":"..."}}
//
// The second symbol tracks the first through a fixed ratio plus a small
// mean-reverting wobble, so the pair produces a usable spread signal.
//
// Config (env vars):
//
//	FEEDSIM_ADDR         — listen address (default: ":9001")
//	FEEDSIM_SYMBOLS      — comma-separated pair, A first (default: "BTCUSDT,ETHUSDT")
//	FEEDSIM_INTERVAL_MS  — broadcast interval milliseconds (default: "250")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type tradeData struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	TradeTime int64  `json:"T"` // epoch millis
	Price     string `json:"p"`
	Qty       string `json:"q"`
}

type streamFrame struct {
	Stream string    `json:"stream"`
	Data   tradeData `json:"data"`
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop frame
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s (streams=%s)", r.RemoteAddr, r.URL.Query().Get("streams"))

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// pairSim walks the A-leg price and keeps B anchored to A/ratio with a
// mean-reverting offset, so the simulated spread oscillates rather than
// drifting apart.
type pairSim struct {
	symbolA, symbolB string
	priceA           float64
	ratio            float64
	offset           float64 // B's deviation from priceA/ratio
	rng              *rand.Rand
}

func newPairSim(symbolA, symbolB string) *pairSim {
	return &pairSim{
		symbolA: symbolA,
		symbolB: symbolB,
		priceA:  65000,
		ratio:   20, // ETH ~ BTC/20
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// step advances the walk and returns the new (priceA, priceB).
func (p *pairSim) step() (float64, float64) {
	p.priceA *= 1 + (p.rng.Float64()*0.002 - 0.001)
	p.offset = p.offset*0.95 + p.rng.NormFloat64()*p.priceA/p.ratio*0.0005
	return p.priceA, p.priceA/p.ratio + p.offset
}

func runGenerator(h *hub, sim *pairSim, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		priceA, priceB := sim.step()
		now := time.Now().UTC().UnixMilli()
		h.broadcast(frame(sim.symbolA, priceA, sim.rng.Float64()*2, now))
		h.broadcast(frame(sim.symbolB, priceB, sim.rng.Float64()*20, now))
	}
}

func frame(symbol string, price, qty float64, ts int64) []byte {
	f := streamFrame{
		Stream: strings.ToLower(symbol) + "@trade",
		Data: tradeData{
			EventType: "trade",
			Symbol:    symbol,
			TradeTime: ts,
			Price:     strconv.FormatFloat(price, 'f', 2, 64),
			Qty:       strconv.FormatFloat(qty, 'f', 4, 64),
		},
	}
	b, _ := json.Marshal(f)
	return b
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo trade feed...")

	addr := envOrDefault("FEEDSIM_ADDR", ":9001")
	symbolsEnv := envOrDefault("FEEDSIM_SYMBOLS", "BTCUSDT,ETHUSDT")
	intervalMs := envIntOrDefault("FEEDSIM_INTERVAL_MS", 250)

	symbols := strings.Split(symbolsEnv, ",")
	if len(symbols) != 2 {
		log.Fatalf("[feedsim] FEEDSIM_SYMBOLS must name exactly two symbols, got %q", symbolsEnv)
	}
	symbolA := strings.ToUpper(strings.TrimSpace(symbols[0]))
	symbolB := strings.ToUpper(strings.TrimSpace(symbols[1]))
	log.Printf("[feedsim] pair: %s/%s, interval: %dms", symbolA, symbolB, intervalMs)

	h := newHub()
	go runGenerator(h, newPairSim(symbolA, symbolB), intervalMs)

	// Same path shape as the live feed so pairwatch needs only FEED_URL
	// pointed here.
	http.HandleFunc("/stream", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s  (ws://localhost%s/stream?streams=...)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
