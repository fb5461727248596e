package exchange

import (
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_grid_bot/internal/domain"
)

// TradeStream subscribes to the Bitkub public websocket trade feed. The
// engine does not depend on it (pricing is poll-based), it feeds the
// observability surfaces with live ticks between polls.
type TradeStream struct {
	wsURL     string
	conn      *websocket.Conn
	done      chan struct{}
	callbacks []func(symbol string, trade domain.PublicTrade)
	mu        sync.Mutex
}

func NewTradeStream(wsURL string) *TradeStream {
	if wsURL == "" {
		wsURL = BitkubWSURL
	}
	return &TradeStream{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// OnTrade registers a callback invoked for every live trade.
func (t *TradeStream) OnTrade(cb func(symbol string, trade domain.PublicTrade)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// Connect dials the per-symbol trade stream and starts the read loop.
// The stream path embeds the lowercase symbol, e.g. market.trade.thb_usdt.
// Each call gets its own Done channel, so a stream can be re-connected
// after a read failure.
func (t *TradeStream) Connect(symbol string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		// Already connected
		return nil
	}

	url := t.wsURL + "/market.trade." + strings.ToLower(symbol)
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	t.conn = c
	t.done = make(chan struct{})

	go t.readLoop(symbol, c, t.done)

	return nil
}

func (t *TradeStream) readLoop(symbol string, conn *websocket.Conn, done chan struct{}) {
	// done is closed last, after the connection slot is released, so a
	// waiter may re-Connect as soon as it fires.
	defer func() {
		conn.Close()
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		close(done)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Println("WS Read error:", err)
			return
		}

		var event struct {
			Stream string  `json:"stream"`
			Rate   float64 `json:"rat"`
			Amount float64 `json:"amt"`
			Time   int64   `json:"ts"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			log.Println("WS Unmarshal error:", err)
			continue
		}
		if !strings.HasPrefix(event.Stream, "market.trade.") {
			continue
		}
		if event.Rate <= 0 || event.Amount <= 0 {
			continue
		}

		trade := domain.PublicTrade{
			Time:   event.Time,
			Price:  event.Rate,
			Amount: event.Amount,
		}

		t.mu.Lock()
		callbacks := make([]func(string, domain.PublicTrade), len(t.callbacks))
		copy(callbacks, t.callbacks)
		t.mu.Unlock()

		for _, cb := range callbacks {
			cb(symbol, trade)
		}
	}
}

// Done is closed when the current connection's read loop exits.
func (t *TradeStream) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *TradeStream) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
