// README: RabbitMQ sink publishing ride events to a topic exchange.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridedispatch/internal/modules/ride"
)

var ErrBrokerClosed = errors.New("rabbitmq connection is closed")

type RabbitEmitter struct {
	url      string
	exchange string
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
}

func NewRabbitEmitter(url, exchange string) (*RabbitEmitter, error) {
	r := &RabbitEmitter{url: url, exchange: exchange}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return r, nil
}

func (r *RabbitEmitter) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(r.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return err
	}
	r.conn, r.ch = conn, ch
	return nil
}

// Emit publishes to routing key "ride.<event type>". A dropped connection is
// re-dialled once per call.
func (r *RabbitEmitter) Emit(ctx context.Context, e ride.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() || r.ch == nil || r.ch.IsClosed() {
		if err := r.connect(); err != nil {
			return fmt.Errorf("%w: %v", ErrBrokerClosed, err)
		}
	}
	return r.ch.PublishWithContext(ctx, r.exchange, RoutingKey(e), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    string(e.RideID) + ":" + string(e.Status),
		Timestamp:    e.At,
		Body:         body,
	})
}

func RoutingKey(e ride.Event) string {
	return "ride." + string(e.Type)
}

func (r *RabbitEmitter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
