package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffl/batch-ingester/internal/batch"
	"github.com/ffl/batch-ingester/internal/notify"
	"github.com/ffl/batch-ingester/internal/trade"
)

type published struct {
	subject string
	data    []byte
	opts    int
}

type fakeJS struct {
	msgs []published
	err  error
}

func (f *fakeJS) Publish(_ context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: payload, opts: len(opts)})
	return &jetstream.PubAck{Stream: notify.StreamName, Sequence: uint64(len(f.msgs))}, nil
}

func TestNotify_Committed(t *testing.T) {
	js := &fakeJS{}
	out := batch.Outcome{BatchID: uuid.New(), Status: batch.StatusCommitted, Count: 3}

	require.NoError(t, notify.NewPublisher(js).Notify(context.Background(), out))
	require.Len(t, js.msgs, 1)
	assert.Equal(t, "ffl.batches.committed", js.msgs[0].subject)
	assert.Equal(t, 1, js.msgs[0].opts, "message ID option")

	var ev batch.Event
	require.NoError(t, json.Unmarshal(js.msgs[0].data, &ev))
	assert.Equal(t, out.BatchID.String(), ev.BatchID)
	assert.Equal(t, 3, ev.Count)
	assert.Empty(t, ev.Kind)
}

func TestNotify_Failed(t *testing.T) {
	js := &fakeJS{}
	out := batch.Outcome{
		BatchID: uuid.New(),
		Status:  batch.StatusFailed,
		Line:    4,
		Err:     &trade.UnknownCustomerError{CustomerID: "C9"},
	}

	require.NoError(t, notify.NewPublisher(js).Notify(context.Background(), out))
	require.Len(t, js.msgs, 1)
	assert.Equal(t, "ffl.batches.failed", js.msgs[0].subject)

	var ev batch.Event
	require.NoError(t, json.Unmarshal(js.msgs[0].data, &ev))
	assert.Equal(t, "UnknownCustomer", ev.Kind)
	assert.Equal(t, 4, ev.Line)
	assert.Contains(t, ev.Error, "customer_id=C9")
}

func TestNotify_PublishError(t *testing.T) {
	js := &fakeJS{err: errors.New("no responders")}
	err := notify.NewPublisher(js).Notify(context.Background(),
		batch.Outcome{BatchID: uuid.New(), Status: batch.StatusCommitted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffl.batches.committed")
}
