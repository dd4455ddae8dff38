package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/ecomify/internal/domain/payment"
)

func sampleEvent() payment.StatusChanged {
	return payment.StatusChanged{
		PaymentID: "pay-1",
		OrderID:   "ord-1",
		Method:    payment.MethodPayPal,
		From:      payment.StatusProcessing,
		Change: payment.StatusChange{
			ID:        "01J0000000000000000000000",
			Status:    payment.StatusSucceeded,
			Timestamp: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
			Reference: "cap-1",
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	id, data := EncodeStatusChanged(sampleEvent())
	require.NotEmpty(t, id)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Envelope{
		ID:         id,
		Type:       TypePaymentStatusChanged,
		OccurredAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		PaymentID:  "pay-1",
		OrderID:    "ord-1",
		Method:     "paypal",
		From:       "processing",
		To:         "succeeded",
		Reference:  "cap-1",
	}, env)
}

func TestEncode_InitialStatusHasNoFrom(t *testing.T) {
	e := sampleEvent()
	e.From = 0
	_, data := EncodeStatusChanged(e)
	assert.NotContains(t, string(data), `"from"`)
}

func TestDecode_SkipsUnknownAndRejectsGarbage(t *testing.T) {
	env, err := Decode([]byte(`{"id":"x","extra":{"a":[1,2]},"to":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", env.ID)
	assert.Equal(t, "failed", env.To)

	_, err = Decode([]byte(`{"id":`))
	require.Error(t, err)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	pub := NewKafkaPublisher(w)

	require.NoError(t, pub.PublishStatusChanged(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "pay-1", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, TypePaymentStatusChanged, string(msg.Headers[0].Value))

	env, err := Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, string(msg.Headers[1].Value), env.ID)

	w.err = errors.New("broker unavailable")
	err = pub.PublishStatusChanged(context.Background(), sampleEvent())
	require.ErrorIs(t, err, w.err)
}

type fakeConn struct {
	msgs []*nats.Msg
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	f.msgs = append(f.msgs, m)
	return nil
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeConn{}
	pub := NewNATSPublisher(conn, "ecomify.payments")

	require.NoError(t, pub.PublishStatusChanged(context.Background(), sampleEvent()))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "ecomify.payments", conn.msgs[0].Subject)
	assert.Equal(t, TypePaymentStatusChanged, conn.msgs[0].Header.Get("Event-Type"))
	assert.NotEmpty(t, conn.msgs[0].Header.Get(nats.MsgIdHdr))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, pub.PublishStatusChanged(ctx, sampleEvent()), context.Canceled)
	assert.Len(t, conn.msgs, 1)
}

func TestLogPublisher(t *testing.T) {
	require.NoError(t, LogPublisher{}.PublishStatusChanged(context.Background(), sampleEvent()))
}
