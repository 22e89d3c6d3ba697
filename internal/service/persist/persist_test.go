package persist

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/KNICEX/paper-trader/internal/domain"
	"github.com/KNICEX/paper-trader/internal/repo"
	"github.com/KNICEX/paper-trader/internal/service/ledger"
	"github.com/KNICEX/paper-trader/internal/service/order"
)

var ts = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleSnapshot() Snapshot {
	executedAt := ts.Add(time.Hour)
	return Snapshot{
		Version: Version,
		Balances: map[string]decimal.Decimal{
			"USDT": decimal.RequireFromString("8500.5"),
			"BTC":  decimal.RequireFromString("0.03"),
			"ETH":  decimal.Zero,
		},
		Trades: []ledger.TradeRecord{
			{Id: "t1", Symbol: "BTC/USDT", Side: ledger.SideBuy, Amount: decimal.RequireFromString("0.03"),
				Price: decimal.NewFromInt(50000), Timestamp: ts, Source: ledger.SourceStrategy},
			{Id: "t2", Symbol: "ETH/USDT", Side: ledger.SideBuy, Amount: decimal.NewFromInt(1),
				Price: decimal.NewFromInt(3000), Timestamp: ts.Add(time.Minute), Source: ledger.SourceManual},
			{Id: "t3", Symbol: "ETH/USDT", Side: ledger.SideSell, Amount: decimal.NewFromInt(1),
				Price: decimal.RequireFromString("3000.5"), Timestamp: ts.Add(time.Hour), Source: ledger.SourceTakeProfit},
		},
		Orders: []order.Order{
			{Id: "sl_1", Symbol: "BTC/USDT", Kind: order.KindStopLoss, TriggerPrice: decimal.NewFromInt(47500),
				Amount: decimal.RequireFromString("0.03"), Status: order.StatusActive, CreatedAt: ts},
			{Id: "tp_2", Symbol: "ETH/USDT", Kind: order.KindTakeProfit, TriggerPrice: decimal.NewFromInt(3000),
				Amount: decimal.NewFromInt(1), Status: order.StatusExecuted, CreatedAt: ts,
				ExecutedAt: &executedAt, ExecutedPrice: decimal.NewNullDecimal(decimal.RequireFromString("3000.5"))},
		},
		TradingEnabled: true,
		TrackedSymbols: []string{"BTC/USDT", "ETH/USDT"},
		LastUpdate:     ts.Add(2 * time.Hour),
	}
}

// assertSnapshotEqual decimal 与 time 按值比较
func assertSnapshotEqual(t *testing.T, want, got Snapshot) {
	t.Helper()
	assert.Equal(t, want.Version, got.Version)
	assert.Equal(t, want.TradingEnabled, got.TradingEnabled)
	assert.Equal(t, want.TrackedSymbols, got.TrackedSymbols)
	assert.True(t, want.LastUpdate.Equal(got.LastUpdate))

	require.Len(t, got.Balances, len(want.Balances))
	for asset, amount := range want.Balances {
		assert.True(t, amount.Equal(got.Balances[asset]), "balance %s", asset)
	}

	require.Len(t, got.Trades, len(want.Trades))
	for i, w := range want.Trades {
		g := got.Trades[i]
		assert.Equal(t, w.Id, g.Id)
		assert.Equal(t, w.Symbol, g.Symbol)
		assert.Equal(t, w.Side, g.Side)
		assert.Equal(t, w.Source, g.Source)
		assert.True(t, w.Amount.Equal(g.Amount))
		assert.True(t, w.Price.Equal(g.Price))
		assert.True(t, w.Timestamp.Equal(g.Timestamp))
	}

	require.Len(t, got.Orders, len(want.Orders))
	for i, w := range want.Orders {
		g := got.Orders[i]
		assert.Equal(t, w.Id, g.Id)
		assert.Equal(t, w.Kind, g.Kind)
		assert.Equal(t, w.Status, g.Status)
		assert.True(t, w.TriggerPrice.Equal(g.TriggerPrice))
		assert.True(t, w.Amount.Equal(g.Amount))
		assert.Equal(t, w.ExecutedPrice.Valid, g.ExecutedPrice.Valid)
		if w.ExecutedPrice.Valid {
			assert.True(t, w.ExecutedPrice.Decimal.Equal(g.ExecutedPrice.Decimal))
			require.NotNil(t, g.ExecutedAt)
			assert.True(t, w.ExecutedAt.Equal(*g.ExecutedAt))
		} else {
			assert.Nil(t, g.ExecutedAt)
		}
	}
}

// StoreSuite 每种存储共用的用例
type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
}

func (s *StoreSuite) TestLoadEmpty() {
	_, err := s.store.Load(context.Background())
	s.ErrorIs(err, ErrNoSnapshot)
}

func (s *StoreSuite) TestRoundTrip() {
	ctx := context.Background()
	want := sampleSnapshot()
	s.Require().NoError(s.store.Save(ctx, want))

	got, err := s.store.Load(ctx)
	s.Require().NoError(err)
	assertSnapshotEqual(s.T(), want, got)
}

func (s *StoreSuite) TestSaveReplaces() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, sampleSnapshot()))

	next := Snapshot{
		Version:  Version,
		Balances: map[string]decimal.Decimal{"USDT": decimal.NewFromInt(10000)},
	}
	s.Require().NoError(s.store.Save(ctx, next))

	got, err := s.store.Load(ctx)
	s.Require().NoError(err)
	s.Empty(got.Trades)
	s.Empty(got.Orders)
	s.Empty(got.TrackedSymbols)
	s.False(got.TradingEnabled)
	s.Len(got.Balances, 1)
}

func (s *StoreSuite) TestVersionMismatch() {
	ctx := context.Background()
	snap := sampleSnapshot()
	snap.Version = 2
	s.Require().NoError(s.store.Save(ctx, snap))

	_, err := s.store.Load(ctx)
	s.ErrorIs(err, domain.ErrPersistenceFailure)
}

func TestFileStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		return NewFileStore(filepath.Join(t.TempDir(), "state", "paper.json"))
	}})
}

func TestGormStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
		require.NoError(t, repo.InitTables(db))
		return NewGormStore(repo.NewSnapshotRepo(db))
	}})
}

// memoryObjects 内存中的 ObjectAPI
type memoryObjects struct {
	objects map[string][]byte
}

func (m *memoryObjects) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memoryObjects) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		return NewS3Store(&memoryObjects{objects: map[string][]byte{}}, "paper", "snapshots/paper.json")
	}})
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "paper.json"))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(context.Background(), sampleSnapshot()))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "paper.json", entries[0].Name())
}

func TestFileStoreCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileStore(path).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrPersistenceFailure)
}

func TestValidate(t *testing.T) {
	snap := sampleSnapshot()
	assert.NoError(t, snap.Validate())

	snap.Balances["BTC"] = decimal.NewFromInt(-1)
	assert.ErrorIs(t, snap.Validate(), domain.ErrPersistenceFailure)
}

func TestFileStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFileStore(filepath.Join(t.TempDir(), "paper.json")).Save(ctx, sampleSnapshot())
	assert.ErrorIs(t, err, context.Canceled)
}
