package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

var event = Event{
	Type:      EventOrderExecuted,
	Symbol:    "BTC/USDT",
	Message:   "stop loss executed",
	Data:      map[string]any{"price": "43500"},
	Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}

func TestRedisNotifier(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, DefaultChannel, mock.MatchedBy(func(payload []byte) bool {
		var got Event
		if err := json.Unmarshal(payload, &got); err != nil {
			return false
		}
		return got.Type == EventOrderExecuted && got.Symbol == "BTC/USDT" && got.Data["price"] == "43500"
	})).Return(nil).Once()

	require.NoError(t, NewRedisNotifier(pub, "").Notify(context.Background(), event))
	pub.AssertExpectations(t)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	require.NoError(t, NewLogNotifier(logger).Notify(context.Background(), event))
	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, `msg="stop loss executed"`)
	assert.Contains(t, out, "type=order_executed")
	assert.Contains(t, out, "price=43500")

	buf.Reset()
	require.NoError(t, NewLogNotifier(logger).Notify(context.Background(), Event{Type: EventFeedUnavailable, Message: "feed down"}))
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestMultiJoinsErrors(t *testing.T) {
	failing := new(MockPublisher)
	failing.On("Publish", mock.Anything, "a", mock.Anything).Return(errors.New("redis down"))
	ok := new(MockPublisher)
	ok.On("Publish", mock.Anything, "b", mock.Anything).Return(nil)

	m := Multi{NewRedisNotifier(failing, "a"), NewRedisNotifier(ok, "b")}
	err := m.Notify(context.Background(), event)
	assert.ErrorContains(t, err, "redis down")
	ok.AssertNumberOfCalls(t, "Publish", 1)

	assert.NoError(t, Multi{}.Notify(context.Background(), event))
}

type chanSubscriber struct {
	msgs    chan []byte
	channel string
	err     error
}

func (s *chanSubscriber) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s.channel = channel
	if s.err != nil {
		return nil, s.err
	}
	return s.msgs, nil
}

type recordingNotifier struct {
	events []Event
}

func (r *recordingNotifier) Notify(ctx context.Context, event Event) error {
	r.events = append(r.events, event)
	return nil
}

func TestFollow(t *testing.T) {
	valid, err := json.Marshal(event)
	require.NoError(t, err)

	tests := []struct {
		name     string
		payloads [][]byte
		wantLen  int
	}{
		{name: "转发事件", payloads: [][]byte{valid, valid}, wantLen: 2},
		{name: "跳过无法解析的消息", payloads: [][]byte{[]byte("not json"), valid}, wantLen: 1},
		{name: "没有消息", wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &chanSubscriber{msgs: make(chan []byte, len(tt.payloads))}
			for _, p := range tt.payloads {
				sub.msgs <- p
			}
			close(sub.msgs)

			rec := &recordingNotifier{}
			require.NoError(t, Follow(context.Background(), sub, "", rec))
			assert.Equal(t, DefaultChannel, sub.channel)
			require.Len(t, rec.events, tt.wantLen)
			for _, got := range rec.events {
				assert.Equal(t, EventOrderExecuted, got.Type)
				assert.Equal(t, "BTC/USDT", got.Symbol)
				assert.True(t, event.Timestamp.Equal(got.Timestamp))
			}
		})
	}

	t.Run("订阅失败", func(t *testing.T) {
		sub := &chanSubscriber{err: errors.New("redis down")}
		err := Follow(context.Background(), sub, "paper:*", &recordingNotifier{})
		assert.ErrorContains(t, err, "redis down")
		assert.Equal(t, "paper:*", sub.channel)
	})
}
