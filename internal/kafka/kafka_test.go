package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

// ── mocks ───────────────────────────────────────────────────────────────────

type fakeFetcher struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeFetcher) Close() error { return nil }

type recordingProducer struct {
	topic, key string
	value      []byte
}

func (p *recordingProducer) Publish(_ context.Context, topic, key string, value []byte) error {
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func (p *recordingProducer) Close() error { return nil }

// ── tests ───────────────────────────────────────────────────────────────────

func TestHeaderCarrier(t *testing.T) {
	c := HeaderCarrier{}
	c.Set("traceparent", "a")
	c.Set("tracestate", "b")
	c.Set("traceparent", "c")

	assert.Equal(t, "c", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate"}, c.Keys())
	assert.Len(t, c, 2)
}

func TestConsumer_CommitPolicy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fakeFetcher{
		msgs:   []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}},
		cancel: cancel,
	}
	c := &consumer{reader: f, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := c.Subscribe(ctx, func(_ context.Context, msg Message) error {
		switch msg.Offset {
		case 2:
			return errors.New("transient")
		case 3:
			return &PermanentError{Err: errors.New("bad json")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, f.committed)
}

func TestEventPublisher_KeysByTask(t *testing.T) {
	p := &recordingProducer{}
	ev := domain.TaskEvent{TaskID: "t-1", TaskType: domain.TypeResearch, From: domain.StatusPending, To: domain.StatusRunning}

	require.NoError(t, NewEventPublisher(p).PublishTaskEvent(context.Background(), ev))
	assert.Equal(t, TopicTaskEvents, p.topic)
	assert.Equal(t, "t-1", p.key)

	var got domain.TaskEvent
	require.NoError(t, json.Unmarshal(p.value, &got))
	assert.Equal(t, domain.StatusRunning, got.To)
}

func TestDecodeArticleRequest(t *testing.T) {
	req, err := DecodeArticleRequest(Message{
		Key:   []byte("req-1"),
		Value: []byte(`{"topics":[{"topic":"rust","tags":["lang"]},{"topic":"go"}]}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.RequestID)
	require.Len(t, req.Topics, 2)
	assert.Equal(t, []string{"lang"}, req.Topics[0].Tags)

	for _, bad := range []string{`not json`, `{"topics":[]}`} {
		_, err := DecodeArticleRequest(Message{Value: []byte(bad)})
		var perm *PermanentError
		assert.True(t, errors.As(err, &perm), bad)
	}
}
