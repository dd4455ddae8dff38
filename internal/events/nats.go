package events

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/xenking/ecomify/internal/domain/payment"
)

// MsgPublisher is the subset of *nats.Conn used by NATSPublisher.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

var _ payment.Publisher = (*NATSPublisher)(nil)

// NATSPublisher publishes events on a core NATS subject.
type NATSPublisher struct {
	conn    MsgPublisher
	subject string
}

// ConnectNATS dials url and logs connection state changes.
func ConnectNATS(url, name string, lg *zap.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			lg.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			lg.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	return conn, nil
}

// NewNATSPublisher returns a NATSPublisher that publishes on subject.
func NewNATSPublisher(conn MsgPublisher, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// PublishStatusChanged implements payment.Publisher.
func (p *NATSPublisher) PublishStatusChanged(ctx context.Context, e payment.StatusChanged) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, data := EncodeStatusChanged(e)
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Event-Type", TypePaymentStatusChanged)
	msg.Header.Set(nats.MsgIdHdr, id)
	if err := p.conn.PublishMsg(msg); err != nil {
		return errors.Wrap(err, "publish nats message")
	}
	return nil
}
