package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
)

var btcUsdt = exchange.TradingPair{Base: "BTC", Quote: "USDT"}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return cli, mr
}

func TestPriceCache(t *testing.T) {
	ctx := context.Background()
	receivedAt := time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.UTC)
	tick := exchange.PriceTick{
		TradingPair: btcUsdt,
		Price:       decimal.RequireFromString("45000.12"),
		ReceivedAt:  receivedAt,
	}

	tests := []struct {
		name    string
		ttl     time.Duration
		wantTTL time.Duration
	}{
		{name: "带过期时间", ttl: time.Minute, wantTTL: time.Minute},
		{name: "不过期", ttl: 0, wantTTL: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, mr := newTestClient(t)
			pc := NewPriceCache(cli, tt.ttl)

			require.NoError(t, pc.SetTick(ctx, tick))
			assert.Equal(t, "45000.12", mr.HGet("paper:price:BTCUSDT", "price"))
			assert.Equal(t, "1704110400123456789", mr.HGet("paper:price:BTCUSDT", "ts"))
			assert.Equal(t, tt.wantTTL, mr.TTL("paper:price:BTCUSDT"))

			price, ts, err := pc.GetPrice(ctx, btcUsdt)
			require.NoError(t, err)
			assert.True(t, tick.Price.Equal(price))
			assert.True(t, receivedAt.Equal(ts))
		})
	}

	t.Run("过期后没有缓存", func(t *testing.T) {
		cli, mr := newTestClient(t)
		pc := NewPriceCache(cli, time.Minute)
		require.NoError(t, pc.SetTick(ctx, tick))
		mr.FastForward(2 * time.Minute)

		_, _, err := pc.GetPrice(ctx, btcUsdt)
		assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	})

	t.Run("数据损坏", func(t *testing.T) {
		cli, mr := newTestClient(t)
		pc := NewPriceCache(cli, time.Minute)

		mr.HSet("paper:price:BTCUSDT", "price", "abc", "ts", "1")
		_, _, err := pc.GetPrice(ctx, btcUsdt)
		assert.ErrorContains(t, err, "parse price")

		mr.HSet("paper:price:BTCUSDT", "price", "45000", "ts", "later")
		_, _, err = pc.GetPrice(ctx, btcUsdt)
		assert.ErrorContains(t, err, "parse ts")
	})

	t.Run("redis 不可用", func(t *testing.T) {
		cli, mr := newTestClient(t)
		pc := NewPriceCache(cli, time.Minute)
		mr.Close()

		err := pc.SetTick(ctx, tick)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrDataUnavailable)
		_, _, err = pc.GetPrice(ctx, btcUsdt)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrDataUnavailable)
	})
}

func TestEventBus(t *testing.T) {
	tests := []struct {
		name      string
		subscribe string
		publish   string
	}{
		{name: "普通频道", subscribe: "paper:events", publish: "paper:events"},
		{name: "通配频道", subscribe: "paper:*", publish: "paper:events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, _ := newTestClient(t)
			bus := NewEventBus(cli)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			msgs, err := bus.Subscribe(ctx, tt.subscribe)
			require.NoError(t, err)
			require.NoError(t, bus.Publish(ctx, tt.publish, []byte(`{"type":"trade_executed"}`)))

			select {
			case got := <-msgs:
				assert.JSONEq(t, `{"type":"trade_executed"}`, string(got))
			case <-time.After(5 * time.Second):
				t.Fatal("no message received")
			}

			cancel()
			select {
			case _, ok := <-msgs:
				assert.False(t, ok)
			case <-time.After(5 * time.Second):
				t.Fatal("subscription not closed")
			}
		})
	}
}

func TestNewPingFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := New(ctx, ClientConfig{Addr: addr})
	assert.ErrorContains(t, err, "ping")

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	assert.NotNil(t, NewFromRedis(rdb).Underlying())
	_ = rdb.Close()
}
