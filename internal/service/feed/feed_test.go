package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
)

var (
	btcUsdt  = exchange.TradingPair{Base: "BTC", Quote: "USDT"}
	ethUsdt  = exchange.TradingPair{Base: "ETH", Quote: "USDT"}
	upgrader = websocket.Upgrader{}
)

func tickerMsg(symbol, price string) []byte {
	return []byte(fmt.Sprintf(`{"e":"24hrTicker","E":1700000000000,"s":"%s","P":"1.50","c":"%s","h":"46000","l":"44000","v":"1234.5","q":"55555555"}`, symbol, price))
}

// drain 一直读到客户端断开
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// newServer 返回 ws://.../ws 基地址与累计连接数
func newServer(t *testing.T, serve func(conn *websocket.Conn)) (string, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", &conns
}

type failingDialer struct {
	calls atomic.Int32
}

func (d *failingDialer) DialContext(ctx context.Context, url string, header http.Header) (*websocket.Conn, *http.Response, error) {
	d.calls.Add(1)
	return nil, nil, errors.New("connection refused")
}

// delayRecorder 记录退避时长, 达到 stopAfter 次后取消 ctx
type delayRecorder struct {
	mu        sync.Mutex
	delays    []time.Duration
	stopAfter int
	cancel    context.CancelFunc
}

func (r *delayRecorder) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	n := len(r.delays)
	r.mu.Unlock()
	if r.stopAfter > 0 && n >= r.stopAfter {
		r.cancel()
		return context.Canceled
	}
	return nil
}

func (r *delayRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func runFeed(ctx context.Context, f *Feed) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- f.Run(ctx)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
		return nil
	}
}

func TestFeedDeliversTicks(t *testing.T) {
	url, _ := newServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, tickerMsg("BTCUSDT", "45000.10"))
		drain(conn)
	})
	f := New(Config{URL: url}, []exchange.TradingPair{btcUsdt})

	ctx, cancel := context.WithCancel(context.Background())
	done := runFeed(ctx, f)

	select {
	case tick := <-f.Ticks():
		assert.Equal(t, btcUsdt, tick.TradingPair)
		assert.True(t, decimal.RequireFromString("45000.10").Equal(tick.Price))
		assert.True(t, decimal.RequireFromString("1.5").Equal(tick.Change24h))
		assert.True(t, decimal.RequireFromString("1234.5").Equal(tick.Volume))
		assert.Equal(t, time.UnixMilli(1700000000000), tick.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("no tick received")
	}

	price, ok := f.Price(btcUsdt, time.Minute)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("45000.10").Equal(price))
	assert.Equal(t, StateConnected, f.State())

	cancel()
	assert.NoError(t, waitDone(t, done))
	assert.Equal(t, StateStopped, f.State())
}

func TestFeedGivesUpAfterMaxAttempts(t *testing.T) {
	dialer := &failingDialer{}
	rec := &delayRecorder{}
	f := New(Config{URL: "ws://127.0.0.1:1/ws"}, []exchange.TradingPair{btcUsdt},
		WithDialer(dialer), WithWait(rec.wait))

	err := f.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, rec.recorded())
	assert.Equal(t, int32(6), dialer.calls.Load())
	assert.Equal(t, StateUnavailable, f.State())
	assert.ErrorIs(t, f.Err(), domain.ErrFeedUnavailable)

	select {
	case <-f.Unavailable():
	default:
		t.Fatal("unavailable channel not closed")
	}
}

func TestFeedHeartbeatTimeoutReconnects(t *testing.T) {
	url, conns := newServer(t, drain)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &delayRecorder{stopAfter: 1, cancel: cancel}
	f := New(Config{
		URL:               url,
		HeartbeatInterval: 10 * time.Millisecond,
		HeartbeatTimeout:  50 * time.Millisecond,
	}, []exchange.TradingPair{btcUsdt}, WithWait(rec.wait))

	assert.NoError(t, waitDone(t, runFeed(ctx, f)))
	assert.Equal(t, []time.Duration{time.Second}, rec.recorded())
	assert.GreaterOrEqual(t, conns.Load(), int32(1))
	assert.ErrorIs(t, f.Err(), domain.ErrFeedDisconnected)
}

func TestFeedResetsAttemptsAfterMessage(t *testing.T) {
	// 每个连接发一条消息后立即断开
	url, conns := newServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, tickerMsg("BTCUSDT", "45000"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &delayRecorder{stopAfter: 3, cancel: cancel}
	f := New(Config{URL: url}, []exchange.TradingPair{btcUsdt}, WithWait(rec.wait))

	assert.NoError(t, waitDone(t, runFeed(ctx, f)))
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, rec.recorded())
	assert.Equal(t, int32(3), conns.Load())
}

func TestFeedSetPairsReconnectsWithoutBackoff(t *testing.T) {
	connected := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connected <- r.URL.Path
		drain(conn)
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &delayRecorder{}
	f := New(Config{URL: url}, []exchange.TradingPair{btcUsdt}, WithWait(rec.wait))
	done := runFeed(ctx, f)

	nextPath := func() string {
		select {
		case path := <-connected:
			return path
		case <-time.After(5 * time.Second):
			t.Fatal("no connection")
			return ""
		}
	}
	assert.Equal(t, "/ws/btcusdt@ticker", nextPath())
	require.Eventually(t, func() bool { return f.State() == StateConnected }, 5*time.Second, 5*time.Millisecond)

	for i, pairs := range [][]exchange.TradingPair{
		{btcUsdt, ethUsdt},
		{ethUsdt},
	} {
		f.SetPairs(pairs)
		if i == 0 {
			assert.Equal(t, "/ws/btcusdt@ticker/ethusdt@ticker", nextPath())
		} else {
			assert.Equal(t, "/ws/ethusdt@ticker", nextPath())
		}
		require.Eventually(t, func() bool { return f.State() == StateConnected }, 5*time.Second, 5*time.Millisecond)
	}

	cancel()
	assert.NoError(t, waitDone(t, done))
	assert.Empty(t, rec.recorded())
}

func TestFeedDropsWhenBufferFull(t *testing.T) {
	url, _ := newServer(t, func(conn *websocket.Conn) {
		for _, p := range []string{"1", "2", "3"} {
			_ = conn.WriteMessage(websocket.TextMessage, tickerMsg("BTCUSDT", p))
		}
		drain(conn)
	})
	f := New(Config{URL: url, TickBuffer: 1}, []exchange.TradingPair{btcUsdt})

	ctx, cancel := context.WithCancel(context.Background())
	done := runFeed(ctx, f)

	require.Eventually(t, func() bool {
		return f.Dropped() == 2
	}, 5*time.Second, 10*time.Millisecond)
	price, ok := f.Price(btcUsdt, 0)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(3).Equal(price))

	tick := <-f.Ticks()
	assert.True(t, decimal.NewFromInt(1).Equal(tick.Price))

	cancel()
	assert.NoError(t, waitDone(t, done))
}

func TestStreamURL(t *testing.T) {
	f := New(Config{URL: "wss://stream.binance.com:9443/ws/"}, []exchange.TradingPair{ethUsdt, btcUsdt})
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@ticker/ethusdt@ticker", f.StreamURL())

	f.SetPairs([]exchange.TradingPair{ethUsdt})
	assert.Equal(t, "wss://stream.binance.com:9443/ws/ethusdt@ticker", f.StreamURL())
	assert.Equal(t, []exchange.TradingPair{ethUsdt}, f.Pairs())
}

func TestHandleMessage(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := New(Config{}, []exchange.TradingPair{btcUsdt}, WithClock(func() time.Time { return now }))

	t.Run("combined stream 包装", func(t *testing.T) {
		f.handleMessage([]byte(`{"stream":"ethusdt@ticker","data":` + string(tickerMsg("ETHUSDT", "3000")) + `}`))
		tick, ok := f.Latest(ethUsdt)
		require.True(t, ok)
		assert.True(t, decimal.NewFromInt(3000).Equal(tick.Price))
		assert.Equal(t, now, tick.ReceivedAt)
	})

	t.Run("非法价格被丢弃", func(t *testing.T) {
		f.handleMessage(tickerMsg("BTCUSDT", "abc"))
		f.handleMessage(tickerMsg("BTCUSDT", "0"))
		f.handleMessage([]byte(`not json`))
		_, ok := f.Latest(btcUsdt)
		assert.False(t, ok)
	})

	t.Run("过期价格", func(t *testing.T) {
		f.handleMessage(tickerMsg("BTCUSDT", "45000"))
		now = now.Add(2 * time.Minute)
		_, ok := f.Price(btcUsdt, time.Minute)
		assert.False(t, ok)
		_, ok = f.Price(btcUsdt, 0)
		assert.True(t, ok)
	})
}

func TestBackoff(t *testing.T) {
	b := Backoff{Base: time.Second, MaxAttempts: 5}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, d := range want {
		assert.Equal(t, d, b.Delay(i))
		assert.False(t, b.Exhausted(i))
	}
	assert.True(t, b.Exhausted(5))
}
