package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"storefront-service/app/domain"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher is the slice of jetstream.JetStream the broker needs.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type stockBroker struct {
	js      Publisher
	subject string
}

func NewStockBrokerPublisher(js Publisher, streamName string) domain.BrokerPublisher {
	return &stockBroker{
		js:      js,
		subject: fmt.Sprintf("%s.available", strings.ToLower(streamName)),
	}
}

func (s *stockBroker) PublishStockAvailable(ctx context.Context, data domain.StockMessage) error {
	body, err := json.Marshal(data)
	if err != nil {
		slog.ErrorContext(ctx, "[stockBroker] PublishStockAvailable", "json.Marshal", err)
		return err
	}

	msg := nats.NewMsg(s.subject)
	msg.Data = body
	msg.Header.Set(jetstream.MsgIDHeader, fmt.Sprintf("%s:%d", data.ProductID, data.Available))

	if _, err = s.js.PublishMsg(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "[stockBroker] PublishStockAvailable", "Publish", err)
		return err
	}

	slog.InfoContext(ctx, "[stockBroker] PublishStockAvailable", "subject", s.subject, "product_id", data.ProductID, "available", data.Available)
	return nil
}
