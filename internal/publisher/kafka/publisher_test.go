package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishWritesKeyedJSON(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	pub := newWithWriter(w, "ingest.runs")

	id, err := pub.Publish(context.Background(), "", map[string]int{"found": 3})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, "ingest.runs", w.msgs[0].Topic)
	require.Equal(t, id, string(w.msgs[0].Key))
	require.JSONEq(t, `{"found":3}`, string(w.msgs[0].Value))

	_, err = pub.Publish(context.Background(), "ingest.alerts", "x")
	require.NoError(t, err)
	require.Equal(t, "ingest.alerts", w.msgs[1].Topic)

	require.NoError(t, pub.Close())
	require.True(t, w.closed)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	pub, err := New(Config{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")

	w := &fakeWriter{err: errors.New("leader not available")}
	_, err = newWithWriter(w, "runs").Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "leader not available")
}
