// Package analytics publishes product events to RabbitMQ.  Delivery is
// best-effort: errors are logged and returned so callers can ignore them
// without interrupting the main request flow.
package analytics

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/account-api/internal/queue"
)

const (
	captureQueue = "analytics.capture"
	aliasQueue   = "analytics.alias"
)

// Publisher dials the broker per publish.  The event volume here is one
// message per API call, so connection churn is not a concern and a broker
// restart never leaves a stale connection behind.
type Publisher struct {
	url string
}

func NewPublisher(url string) *Publisher { return &Publisher{url: url} }

// Capture records a named event for a user.
func (p *Publisher) Capture(ctx context.Context, userID uint64, event string) error {
	return p.publish(ctx, captureQueue, q.AnalyticsEvent{
		UserID:     userID,
		Event:      event,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// Alias links a user id to its email address.
func (p *Publisher) Alias(ctx context.Context, userID uint64, email string) error {
	return p.publish(ctx, aliasQueue, q.AliasEvent{UserID: userID, Email: email})
}

func (p *Publisher) publish(ctx context.Context, queueName string, event any) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("analytics: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("analytics: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Printf("analytics: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("analytics: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		log.Printf("analytics: publish failed: %v", err)
		return err
	}
	return nil
}
