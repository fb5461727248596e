package exchange

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_grid_bot/internal/domain"
)

func newStreamServer(t *testing.T, messages ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/market.trade.") {
			t.Errorf("Unexpected stream path %s", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		for _, msg := range messages {
			conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		conn.Close()
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTradeStream_DeliversTrades(t *testing.T) {
	srv := newStreamServer(t,
		`{"stream":"market.trade.usdt_thb","rat":33.05,"amt":12.5,"ts":1717200100}`,
		`{"stream":"market.trade.usdt_thb","rat":0,"amt":1,"ts":1717200200}`,
	)
	defer srv.Close()

	stream := NewTradeStream(wsURL(srv))
	got := make(chan domain.PublicTrade, 4)
	stream.OnTrade(func(symbol string, trade domain.PublicTrade) {
		if symbol != "USDT_THB" {
			t.Errorf("Unexpected symbol %s", symbol)
		}
		got <- trade
	})

	if err := stream.Connect("USDT_THB"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer stream.Close()

	select {
	case trade := <-got:
		if trade.Price != 33.05 || trade.Amount != 12.5 {
			t.Errorf("Unexpected trade %+v", trade)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No trade delivered")
	}

	// The zero-rate row is filtered, then the server hangs up.
	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after server hangup")
	}

	select {
	case trade := <-got:
		t.Errorf("Junk row delivered: %+v", trade)
	default:
	}
}

func TestTradeStream_ReconnectAfterFailure(t *testing.T) {
	srv := newStreamServer(t)
	defer srv.Close()

	stream := NewTradeStream(wsURL(srv))
	if err := stream.Connect("USDT_THB"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after first hangup")
	}

	// A fresh connection gets a fresh Done channel; its read loop failing
	// again must not panic on an already-closed channel.
	if err := stream.Connect("USDT_THB"); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	defer stream.Close()

	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after second hangup")
	}
}
