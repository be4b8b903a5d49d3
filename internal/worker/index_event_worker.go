package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aken1023/llamaindex-faiss-system1/internal/model"
	"github.com/aken1023/llamaindex-faiss-system1/internal/pkg/logger"
)

// EventStore persists consumed index events.
type EventStore interface {
	Create(event *model.IndexEvent) error
}

// IndexEventWorker consumes index audit events published by the knowledge
// engine and persists them to MySQL.
type IndexEventWorker struct {
	conn      *amqp.Connection
	repo      EventStore
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIndexEventWorker(conn *amqp.Connection, repo EventStore, queueName string) *IndexEventWorker {
	return &IndexEventWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
	}
}

func (w *IndexEventWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handleDelivery(d)
			}
		}
	}()

	return nil
}

// handleDelivery persists one event. A payload that does not decode can
// never succeed, so it is acked with the payload logged as the audit record.
// A persistence failure is requeued once; on redelivery the payload is
// logged and dropped so a broken database cannot spin the queue.
func (w *IndexEventWorker) handleDelivery(d amqp.Delivery) {
	var event model.IndexEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		logger.Errorf("worker drop undecodable index event: %v, payload=%s", err, d.Body)
		_ = d.Ack(false)
		return
	}

	if err := w.repo.Create(&event); err != nil {
		if d.Redelivered {
			logger.Errorf("worker drop index event after retry: %v, payload=%s", err, d.Body)
			_ = d.Nack(false, false)
			return
		}
		logger.Warnf("worker persist index event failed, requeueing once: %v", err)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

func (w *IndexEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
