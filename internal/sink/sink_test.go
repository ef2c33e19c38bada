package sink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerpulse/engine/internal/ingest"
	"github.com/ledgerpulse/engine/internal/publish"
	"github.com/ledgerpulse/engine/internal/store"
	"github.com/ledgerpulse/engine/internal/wire"
)

var fixedNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func whaleEvent(id string) store.WhaleEvent {
	return store.WhaleEvent{
		Transaction: store.Transaction{
			ID:          id,
			Amount:      2_500_000_000_000,
			Source:      "rSource",
			Destination: "rDest",
			ObservedAt:  fixedNow,
			Transport:   store.TransportPush,
		},
		Threshold:   1_000_000_000_000,
		SourceLabel: "Binance",
	}
}

func TestKafkaWhaleSinkSendsOneMessagePerWhale(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	p := mocks.NewSyncProducer(t, cfg)

	for _, id := range []string{"AAA", "BBB"} {
		want := id
		p.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			key, err := msg.Key.Encode()
			if err != nil {
				return err
			}
			if string(key) != want {
				return errors.New("unexpected key " + string(key))
			}
			if msg.Topic != "whales" {
				return errors.New("unexpected topic " + msg.Topic)
			}
			return nil
		})
	}

	s := NewKafkaWhaleSinkWithProducer(p, "whales")
	s.now = func() time.Time { return fixedNow }

	u := publish.Update{Seq: 7, Whales: []store.WhaleEvent{whaleEvent("AAA"), whaleEvent("BBB")}}
	require.NoError(t, s.Consume(context.Background(), u))
	require.NoError(t, s.Close())
}

func TestKafkaWhaleSinkEnvelope(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.Type != TypeWhale || env.TS != fixedNow.UnixMilli() {
			return errors.New("bad envelope")
		}
		var w wire.Whale
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return err
		}
		if w.AmountXRP != "2500000" || w.ThresholdXRP != "1000000" || w.FromLabel != "Binance" {
			return errors.New("bad whale payload")
		}
		return nil
	})

	s := NewKafkaWhaleSinkWithProducer(p, "whales")
	s.now = func() time.Time { return fixedNow }
	require.NoError(t, s.Consume(context.Background(), publish.Update{Whales: []store.WhaleEvent{whaleEvent("AAA")}}))
	require.NoError(t, s.Close())
}

func TestKafkaWhaleSinkSkipsUpdatesWithoutWhales(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	s := NewKafkaWhaleSinkWithProducer(p, "whales")

	require.NoError(t, s.Consume(context.Background(), publish.Update{Seq: 1}))
	require.NoError(t, s.Close())
}

func TestKafkaWhaleSinkKeepsSendingAfterFailure(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p.ExpectSendMessageAndSucceed()

	s := NewKafkaWhaleSinkWithProducer(p, "whales")
	err := s.Consume(context.Background(), publish.Update{Whales: []store.WhaleEvent{whaleEvent("AAA"), whaleEvent("BBB")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Contains(t, err.Error(), "AAA")
	require.NoError(t, s.Close())
}

type fakeRedis struct {
	mu         sync.Mutex
	published  map[string][][]byte
	kv         map[string][]byte
	ttl        map[string]time.Duration
	publishErr error
	closed     bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		published: make(map[string][][]byte),
		kv:        make(map[string][]byte),
		ttl:       make(map[string]time.Duration),
	}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return redis.NewIntResult(0, f.publishErr)
	}
	f.published[channel] = append(f.published[channel], message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = value.([]byte)
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func statsUpdate(seq uint64) publish.Update {
	return publish.Update{
		Seq:   seq,
		State: store.StateLive,
		Snapshot: store.WindowSnapshot{
			Events:         []store.Transaction{{ID: "A", Amount: 1_000_000}},
			Count:          1,
			VolumeInWindow: 1_000_000,
		},
		Health: ingest.Health{State: store.StateLive},
	}
}

func TestRedisStatsSinkPublishesAndStoresLatest(t *testing.T) {
	rc := newFakeRedis()
	s := NewRedisStatsSinkWithClient(rc, "xrpl:stats", 5)
	s.now = func() time.Time { return fixedNow }

	require.NoError(t, s.Consume(context.Background(), statsUpdate(1)))
	require.NoError(t, s.Consume(context.Background(), statsUpdate(2)))

	require.Len(t, rc.published["xrpl:stats"], 2)
	assert.Equal(t, DefaultStatsTTL, rc.ttl["xrpl:stats:latest"])

	var env Envelope
	require.NoError(t, json.Unmarshal(rc.kv["xrpl:stats:latest"], &env))
	assert.Equal(t, TypeStats, env.Type)

	var stats wire.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, uint64(2), stats.Seq)
	assert.Equal(t, "1", stats.Window.VolumeXRP)

	require.NoError(t, s.Close())
	assert.True(t, rc.closed)
}

func TestRedisStatsSinkPublishError(t *testing.T) {
	rc := newFakeRedis()
	rc.publishErr = errors.New("connection refused")
	s := NewRedisStatsSinkWithClient(rc, "xrpl:stats", 5)

	err := s.Consume(context.Background(), statsUpdate(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xrpl:stats")
	assert.Empty(t, rc.kv)
}

type fixedWindow struct{}

func (fixedWindow) Snapshot() store.WindowSnapshot { return store.WindowSnapshot{} }

type fixedHealth struct{}

func (fixedHealth) Health() ingest.Health { return ingest.Health{State: store.StateLive} }

func TestForwardStopsWhenSubscriptionCloses(t *testing.T) {
	pub := publish.New(publish.Config{Interval: time.Hour}, fixedWindow{}, fixedHealth{}, nil, nil)
	sub := pub.Subscribe()

	var mu sync.Mutex
	var seen []uint64
	fn := func(_ context.Context, u publish.Update) error {
		mu.Lock()
		seen = append(seen, u.Seq)
		mu.Unlock()
		if u.Seq == 1 {
			return errors.New("boom")
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- Forward(context.Background(), "test", sub, fn) }()

	pub.Publish()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, time.Millisecond)

	pub.Publish()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, time.Millisecond)

	pub.Unsubscribe(sub.ID())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Forward did not return")
	}
	assert.Equal(t, []uint64{1, 2}, seen)
}
