// Package broker consumes the charge-point event feed from the message
// broker's headers exchange. Messages are acked after handling regardless of
// handler outcome; a poison message must never wedge the queue.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"evpay/internal/ocpp"
	"evpay/internal/services"
)

const (
	actionTransactionEvent   = "TransactionEvent"
	actionStatusNotification = "StatusNotification"
)

// Handler is the slice of the checkout state machine the consumer feeds.
type Handler interface {
	ApplyTransactionEvent(ctx context.Context, stationId string, ev ocpp.TransactionEventRequest) error
	ApplyStatusNotification(ctx context.Context, stationId string, n ocpp.StatusNotificationRequest) error
}

type Consumer struct {
	log      *zap.Logger
	url      string
	exchange string
	queue    string
	handler  Handler
	audit    services.AuditStore
	timeout  time.Duration
}

func NewConsumer(log *zap.Logger, url, exchange, queue string, handler Handler, audit services.AuditStore, timeout time.Duration) *Consumer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Consumer{
		log:      log,
		url:      url,
		exchange: exchange,
		queue:    queue,
		handler:  handler,
		audit:    audit,
		timeout:  timeout,
	}
}

// envelope is the broker message body: the OCPP action name plus its payload.
type envelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Run connects, declares the bindings and consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("broker dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("broker channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.exchange, "headers", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	// state "1" filters for messages the charge-point system has accepted.
	for _, action := range []string{actionTransactionEvent, actionStatusNotification} {
		err := ch.QueueBind(q.Name, "", c.exchange, false, amqp.Table{
			"x-match": "all",
			"action":  action,
			"state":   "1",
		})
		if err != nil {
			return fmt.Errorf("queue bind %s: %w", action, err)
		}
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.log.Info("broker consumer started",
		zap.String("exchange", c.exchange),
		zap.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("broker delivery channel closed")
			}
			c.handle(ctx, d)
			if err := d.Ack(false); err != nil {
				c.log.Error("ack failed", zap.Error(err))
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stationId := headerString(d.Headers, "stationId")
	env, err := decodeEnvelope(d.Body)
	if err != nil {
		c.log.Warn("malformed broker message",
			zap.String("station_id", stationId),
			zap.Error(err))
		return
	}
	if err := c.audit.InsertRaw(ctx, stationId, env.Action, time.Now().UTC(), d.Body); err != nil {
		c.log.Error("event audit failed", zap.Error(err))
	}

	switch env.Action {
	case actionTransactionEvent:
		var ev ocpp.TransactionEventRequest
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			c.log.Warn("malformed transaction event",
				zap.String("station_id", stationId), zap.Error(err))
			return
		}
		if err := c.handler.ApplyTransactionEvent(ctx, stationId, ev); err != nil {
			c.log.Error("transaction event not applied",
				zap.String("station_id", stationId),
				zap.String("transaction_id", ev.TransactionInfo.TransactionId),
				zap.Error(err))
		}
	case actionStatusNotification:
		var n ocpp.StatusNotificationRequest
		if err := json.Unmarshal(env.Payload, &n); err != nil {
			c.log.Warn("malformed status notification",
				zap.String("station_id", stationId), zap.Error(err))
			return
		}
		if err := c.handler.ApplyStatusNotification(ctx, stationId, n); err != nil {
			c.log.Error("status notification not applied",
				zap.String("station_id", stationId), zap.Error(err))
		}
	default:
		c.log.Debug("unhandled broker action", zap.String("action", env.Action))
	}
}

func decodeEnvelope(body []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, err
	}
	if env.Action == "" {
		return env, fmt.Errorf("envelope without action")
	}
	return env, nil
}

func headerString(t amqp.Table, key string) string {
	if t == nil {
		return ""
	}
	if v, ok := t[key].(string); ok {
		return v
	}
	return ""
}
