package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/storefrontd/checkout-core/internal/obs"
)

const (
	// ExchangeName is the topic exchange carrying order events.
	ExchangeName = "storefront.orders"
	// ExchangeType is the exchange kind declared on setup.
	ExchangeType = "topic"
)

// RabbitPublisher publishes order events to a RabbitMQ topic exchange,
// routed by event type (order.placed, order.cancelled).
type RabbitPublisher struct {
	ch *amqp.Channel
}

// NewRabbitPublisher wraps an open channel whose exchange has been declared.
func NewRabbitPublisher(ch *amqp.Channel) *RabbitPublisher {
	return &RabbitPublisher{ch: ch}
}

// Publish marshals the event and publishes it with its type as routing key.
func (p *RabbitPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not marshal order event: %w", err)
	}
	return p.ch.PublishWithContext(ctx,
		ExchangeName,
		ev.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// SetupConn dials the broker with a short retry loop for container startup
// and declares the durable order exchange.
func SetupConn(url string) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		obs.Logger.Warn("rabbitmq_dial_retry", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}
