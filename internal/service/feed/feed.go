package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/service/exchange"
)

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateUnavailable  State = "unavailable"
	StateStopped      State = "stopped"
)

type Config struct {
	URL               string        `mapstructure:"url"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	TickBuffer        int           `mapstructure:"tick_buffer"`
}

func DefaultConfig() Config {
	return Config{
		URL:               "wss://stream.binance.com:9443/ws",
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  30 * time.Second,
		BackoffBase:       time.Second,
		MaxAttempts:       5,
		TickBuffer:        256,
	}
}

// withDefaults 未设置的字段使用默认值
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.TickBuffer <= 0 {
		c.TickBuffer = d.TickBuffer
	}
	return c
}

// Dialer *websocket.Dialer 满足该接口
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Feed 币安 24h ticker 推流. 价格缓存按指针整体替换, 读不阻塞写.
type Feed struct {
	cfg     Config
	backoff Backoff
	dialer  Dialer
	wait    WaitFunc
	now     func() time.Time
	logger  *slog.Logger

	pairsMu      sync.RWMutex
	pairs        map[string]exchange.TradingPair // key: BTCUSDT
	pairsChanged chan struct{}
	resubscribe  atomic.Bool

	cacheMu sync.RWMutex
	cache   map[string]*exchange.PriceTick

	stateMu sync.RWMutex
	state   State
	lastErr error
	conn    *websocket.Conn

	lastMsg atomic.Int64
	dropped atomic.Uint64

	ticks           chan exchange.PriceTick
	unavailable     chan struct{}
	unavailableOnce sync.Once
}

type Option func(*Feed)

func WithDialer(d Dialer) Option {
	return func(f *Feed) {
		f.dialer = d
	}
}

// WithWait 替换退避等待, 测试中用来记录延迟而不真正等待
func WithWait(w WaitFunc) Option {
	return func(f *Feed) {
		f.wait = w
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		f.now = now
	}
}

func New(cfg Config, pairs []exchange.TradingPair, opts ...Option) *Feed {
	cfg = cfg.withDefaults()
	f := &Feed{
		cfg:          cfg,
		backoff:      Backoff{Base: cfg.BackoffBase, MaxAttempts: cfg.MaxAttempts},
		dialer:       &websocket.Dialer{HandshakeTimeout: 15 * time.Second, Proxy: http.ProxyFromEnvironment},
		wait:         sleepCtx,
		now:          time.Now,
		logger:       slog.With("component", "feed"),
		pairsChanged: make(chan struct{}, 1),
		cache:        make(map[string]*exchange.PriceTick),
		state:        StateIdle,
		ticks:        make(chan exchange.PriceTick, cfg.TickBuffer),
		unavailable:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.pairs = toPairMap(pairs)
	return f
}

func toPairMap(pairs []exchange.TradingPair) map[string]exchange.TradingPair {
	return lo.SliceToMap(pairs, func(p exchange.TradingPair) (string, exchange.TradingPair) {
		return p.ToString(), p
	})
}

// Ticks 推送通道, 缓冲区满时丢弃新 tick(缓存仍会更新)
func (f *Feed) Ticks() <-chan exchange.PriceTick {
	return f.ticks
}

// Unavailable 重连次数用尽后关闭
func (f *Feed) Unavailable() <-chan struct{} {
	return f.unavailable
}

func (f *Feed) State() State {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.state
}

// Err 最近一次断线原因
func (f *Feed) Err() error {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.lastErr
}

func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

func (f *Feed) setState(s State, err error) {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	f.state = s
	if err != nil {
		f.lastErr = err
	}
}

// Pairs 当前订阅的交易对
func (f *Feed) Pairs() []exchange.TradingPair {
	f.pairsMu.RLock()
	defer f.pairsMu.RUnlock()
	return lo.Values(f.pairs)
}

// SetPairs 替换订阅列表, 已连接时断开并以新列表重连
func (f *Feed) SetPairs(pairs []exchange.TradingPair) {
	f.pairsMu.Lock()
	f.pairs = toPairMap(pairs)
	f.pairsMu.Unlock()

	select {
	case f.pairsChanged <- struct{}{}:
	default:
	}
	f.stateMu.RLock()
	conn := f.conn
	f.stateMu.RUnlock()
	if conn != nil {
		f.resubscribe.Store(true)
		_ = conn.Close()
	}
}

// StreamURL 形如 wss://stream.binance.com:9443/ws/btcusdt@ticker/ethusdt@ticker
func (f *Feed) StreamURL() string {
	f.pairsMu.RLock()
	defer f.pairsMu.RUnlock()
	streams := lo.Map(lo.Keys(f.pairs), func(sym string, _ int) string {
		return strings.ToLower(sym) + "@ticker"
	})
	slices.Sort(streams)
	return strings.TrimRight(f.cfg.URL, "/") + "/" + strings.Join(streams, "/")
}

// Latest 缓存中的最新 tick
func (f *Feed) Latest(pair exchange.TradingPair) (exchange.PriceTick, bool) {
	f.cacheMu.RLock()
	tick, ok := f.cache[pair.ToString()]
	f.cacheMu.RUnlock()
	if !ok {
		return exchange.PriceTick{}, false
	}
	return *tick, true
}

// Price 缓存价格, 超过 maxAge 视为过期; maxAge <= 0 不检查时效
func (f *Feed) Price(pair exchange.TradingPair, maxAge time.Duration) (decimal.Decimal, bool) {
	tick, ok := f.Latest(pair)
	if !ok {
		return decimal.Zero, false
	}
	if maxAge > 0 && f.now().Sub(tick.ReceivedAt) > maxAge {
		return decimal.Zero, false
	}
	return tick.Price, true
}

// Run 阻塞直到 ctx 结束(返回 nil)或重连次数用尽(返回 ErrFeedUnavailable)
func (f *Feed) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			f.setState(StateStopped, nil)
			return nil
		}
		if len(f.Pairs()) == 0 {
			f.setState(StateIdle, nil)
			select {
			case <-ctx.Done():
				continue
			case <-f.pairsChanged:
				continue
			}
		}

		if attempt == 0 {
			f.setState(StateConnecting, nil)
		} else {
			f.setState(StateReconnecting, nil)
		}
		received, err := f.session(ctx)
		if ctx.Err() != nil {
			f.setState(StateStopped, nil)
			return nil
		}
		if received {
			attempt = 0
		}
		// 交易对变更主动断开, 立即重连且不计入退避
		if f.resubscribe.Swap(false) {
			attempt = 0
			f.logger.Info("price feed resubscribing", "pairs", len(f.Pairs()))
			continue
		}
		if f.backoff.Exhausted(attempt) {
			final := fmt.Errorf("%w: gave up after %d reconnect attempts: %v", domain.ErrFeedUnavailable, attempt, err)
			f.setState(StateUnavailable, final)
			f.unavailableOnce.Do(func() { close(f.unavailable) })
			f.logger.Error("price feed unavailable", "attempts", attempt, "error", err)
			return final
		}

		delay := f.backoff.Delay(attempt)
		attempt++
		f.setState(StateReconnecting, err)
		f.logger.Warn("price feed disconnected, reconnecting", "attempt", attempt, "delay", delay, "error", err)
		if err := f.wait(ctx, delay); err != nil {
			f.setState(StateStopped, nil)
			return nil
		}
	}
}

// session 建立一次连接并读取直到断开, received 表示期间是否收到过消息
func (f *Feed) session(ctx context.Context) (received bool, err error) {
	url := f.StreamURL()
	conn, _, err := f.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: dial: %v", domain.ErrFeedDisconnected, err)
	}
	f.stateMu.Lock()
	f.conn = conn
	f.state = StateConnected
	f.stateMu.Unlock()
	f.touch()
	f.logger.Info("price feed connected", "url", url)

	sessionCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.watchdog(sessionCtx, conn)
	}()
	defer func() {
		cancel()
		wg.Wait()
		_ = conn.Close()
		f.stateMu.Lock()
		f.conn = nil
		f.stateMu.Unlock()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("%w: read: %v", domain.ErrFeedDisconnected, err)
		}
		f.touch()
		received = true
		f.handleMessage(msg)
	}
}

// watchdog 超过 HeartbeatTimeout 没有消息就关闭连接触发重连
func (f *Feed) watchdog(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(f.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			idle := f.now().Sub(time.Unix(0, f.lastMsg.Load()))
			if idle > f.cfg.HeartbeatTimeout {
				f.logger.Warn("price feed heartbeat timeout", "idle", idle)
				_ = conn.Close()
				return
			}
		}
	}
}

func (f *Feed) touch() {
	f.lastMsg.Store(f.now().UnixNano())
}

// combinedEvent /stream?streams= 形式的包装
type combinedEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

func (f *Feed) handleMessage(raw []byte) {
	var wrapped combinedEvent
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 {
		raw = wrapped.Data
	}
	var event binance.WsMarketStatEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		f.logger.Debug("drop undecodable message", "error", err)
		return
	}
	tick, err := f.normalize(event)
	if err != nil {
		f.logger.Debug("drop ticker", "symbol", event.Symbol, "error", err)
		return
	}

	f.cacheMu.Lock()
	f.cache[tick.TradingPair.ToString()] = &tick
	f.cacheMu.Unlock()

	select {
	case f.ticks <- tick:
	default:
		f.dropped.Add(1)
	}
}

func (f *Feed) normalize(e binance.WsMarketStatEvent) (exchange.PriceTick, error) {
	if e.Symbol == "" {
		return exchange.PriceTick{}, fmt.Errorf("missing symbol")
	}
	f.pairsMu.RLock()
	pair, ok := f.pairs[strings.ToUpper(e.Symbol)]
	f.pairsMu.RUnlock()
	if !ok {
		base, quote := exchange.SplitSymbol(e.Symbol)
		if quote == "" {
			return exchange.PriceTick{}, fmt.Errorf("unknown symbol %s", e.Symbol)
		}
		pair = exchange.TradingPair{Base: base, Quote: quote}
	}

	price, err := decimal.NewFromString(e.LastPrice)
	if err != nil || !price.IsPositive() {
		return exchange.PriceTick{}, fmt.Errorf("invalid last price %q", e.LastPrice)
	}
	return exchange.PriceTick{
		TradingPair: pair,
		Price:       price,
		Change24h:   parseOrZero(e.PriceChangePercent),
		Volume:      parseOrZero(e.BaseVolume),
		High:        parseOrZero(e.HighPrice),
		Low:         parseOrZero(e.LowPrice),
		Timestamp:   time.UnixMilli(e.Time),
		ReceivedAt:  f.now(),
	}, nil
}

func parseOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
