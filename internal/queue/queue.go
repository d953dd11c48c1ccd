package queue

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// DispatchQueue carries campaign IDs from the API and the scheduler to the
// worker process.
const DispatchQueue = "campaign_dispatch"

// defaultRequeues bounds Requeue when the caller passes no limit of its
// own. The worker passes its per-recipient retry budget instead, so every
// recipient can use up all its attempts across requeue rounds.
const defaultRequeues = 3

// DispatchJob is the wire format of one queued dispatch.
type DispatchJob struct {
	CampaignID string `json:"campaign_id"`
}

// Enqueuer is the narrow publish side used by the service and scheduler.
type Enqueuer interface {
	PublishDispatch(campaignID string) error
}

// Queue wraps one AMQP connection plus the declared dispatch queue.
type Queue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to RabbitMQ and declares the durable dispatch queue.
func Dial(url string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		DispatchQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &Queue{conn: conn, ch: ch}, nil
}

// PublishDispatch enqueues one campaign for the worker.
func (q *Queue) PublishDispatch(campaignID string) error {
	body, err := json.Marshal(DispatchJob{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		DispatchQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume starts delivering dispatch jobs. Each delivery must be acked or
// requeued by the caller via Ack/Requeue.
func (q *Queue) Consume() (<-chan amqp.Delivery, error) {
	return q.ch.Consume(
		DispatchQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
}

// ParseJob decodes a delivery body.
func ParseJob(d amqp.Delivery) (DispatchJob, error) {
	var job DispatchJob
	err := json.Unmarshal(d.Body, &job)
	return job, err
}

// Requeue republishes the job with an incremented retry header and acks the
// original delivery. Once maxRequeues is hit the job is dropped instead;
// recipients it leaves pending surface only through the redispatch endpoint
// (scheduled campaigns are also re-listed by the poller while incomplete).
func (q *Queue) Requeue(d amqp.Delivery, maxRequeues int) error {
	if maxRequeues <= 0 {
		maxRequeues = defaultRequeues
	}
	retries := retryCount(d)
	if retries >= int32(maxRequeues) {
		return d.Ack(false)
	}
	err := q.ch.Publish(
		"",
		DispatchQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         d.Body,
			Headers:      amqp.Table{"x-retry-count": retries + 1},
		},
	)
	if err != nil {
		return err
	}
	return d.Ack(false)
}

// retryCount reads the x-retry-count header, zero when absent or malformed.
func retryCount(d amqp.Delivery) int32 {
	if v, ok := d.Headers["x-retry-count"].(int32); ok {
		return v
	}
	return 0
}

// Close tears down the channel and connection.
func (q *Queue) Close() {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}

var _ Enqueuer = (*Queue)(nil)
