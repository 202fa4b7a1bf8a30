package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	got []kafka.Message
	err error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.got = append(w.got, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestProducer_EncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "snappy")

	require.NoError(t, p.PublishBatch(context.Background(), "readings", []Message{
		{Key: []byte("7"), Value: map[string]int{"sensor_id": 7}},
		{Value: "raw"},
		{Value: []byte("bytes")},
	}))
	require.Len(t, w.got, 3)
	assert.JSONEq(t, `{"sensor_id":7}`, string(w.got[0].Value))
	assert.Equal(t, "7", string(w.got[0].Key))
	assert.Equal(t, "raw", string(w.got[1].Value))
	assert.Equal(t, "readings", w.got[2].Topic)

	require.NoError(t, p.PublishBatch(context.Background(), "readings", nil))
	assert.Len(t, w.got, 3)
}

func TestProducer_WrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&fakeWriter{err: boom}, "snappy")

	err := p.PublishMessage(context.Background(), "logs", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "logs")
}

func TestProducer_RejectsUnencodable(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "snappy")
	err := p.Publish(context.Background(), "t", nil, make(chan int))
	assert.Error(t, err)
	assert.Empty(t, w.got)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
	_, err = NewConsumer()
	assert.Error(t, err)
}

func TestProducerConfig_Validate(t *testing.T) {
	cfg := DefaultProducerConfig()
	cfg.Brokers = []string{"localhost:9092"}
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.RequiredAcks = 2
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Compression = "brotli"
	assert.Error(t, bad.Validate())

	_, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithBatchSize(0))
	assert.ErrorContains(t, err, "batch size")
}

func TestBackoffWithJitter(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.LessOrEqual(t, d, max)
		assert.Greater(t, d, time.Duration(0))
	}
	d := backoffWithJitter(min, max, 1)
	assert.GreaterOrEqual(t, d, min/2)
}

func TestHookChain_OrderAndShortCircuit(t *testing.T) {
	var calls []string
	mk := func(name string, fail bool) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				calls = append(calls, "before:"+name)
				if fail {
					return ctx, km, data, &HookError{Code: "ERR_VALIDATION"}
				}
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) { calls = append(calls, "after:"+name) },
			Err:   func(context.Context, string, kafka.Message, []byte, error) { calls = append(calls, "err:"+name) },
		}
	}

	chain := NewHookChain(mk("a", false), nil, mk("b", false))
	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(data))
	chain.AfterHandle(context.Background(), "t", kafka.Message{}, data, nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, calls)

	calls = nil
	chain = NewHookChain(mk("a", true), mk("b", false))
	_, _, _, err = chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_VALIDATION", he.Code)
	assert.Equal(t, []string{"before:a", "err:a", "err:b"}, calls)
}

func TestHookChain_RecoversPanics(t *testing.T) {
	chain := NewHookChain(HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { panic("bad after") },
	})
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.NotPanics(t, func() { chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil) })
}

func TestTraceHook(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := TraceHook{}.BeforeHandle(context.Background(), "t", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", ctx.Value(CtxTraceID))
}
