// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/sensors_bridge/internal/event"
)

const (
	kafkaQueueSize    = 1024
	kafkaBatchSize    = 64
	kafkaWriteTimeout = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// KafkaPublisher appends every bridge event to a Kafka topic, keyed by
// event name. Events are queued and written by Run; when the queue is
// full new events are dropped.
type KafkaPublisher struct {
	w      messageWriter
	queue  chan kafka.Message
	log    *slog.Logger
	onFail func()
	now    func() time.Time
	subs   []*event.Subscription
}

// NewKafkaPublisher creates a publisher over w. onFail may be nil.
func NewKafkaPublisher(w messageWriter, log *slog.Logger, onFail func()) *KafkaPublisher {
	if onFail == nil {
		onFail = func() {}
	}
	return &KafkaPublisher{
		w:      w,
		queue:  make(chan kafka.Message, kafkaQueueSize),
		log:    log.With(slog.String("component", "kafka")),
		onFail: onFail,
		now:    time.Now,
	}
}

// Attach starts queueing events from ch.
func (p *KafkaPublisher) Attach(ch *event.Channel) {
	p.subs = append(p.subs, listenAll(ch, p.enqueue)...)
}

func (p *KafkaPublisher) enqueue(name string, payload any) {
	body, err := json.Marshal(Envelope{Event: name, Data: payload})
	if err != nil {
		p.log.Error("marshal event", slog.String("event", name), slog.Any("error", err))
		p.onFail()
		return
	}
	msg := kafka.Message{
		Key:   []byte(name),
		Value: body,
		Time:  p.now(),
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(uuid.New().String())},
		},
	}
	select {
	case p.queue <- msg:
	default:
		p.log.Warn("queue full, dropping event", slog.String("event", name))
		p.onFail()
	}
}

// Run writes queued events until ctx is done, then flushes what is left
// and closes the writer.
func (p *KafkaPublisher) Run(ctx context.Context) error {
	defer func() {
		removeAll(p.subs)
		p.drain()
		if err := p.w.Close(); err != nil {
			p.log.Warn("close writer", slog.Any("error", err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-p.queue:
			p.write(append([]kafka.Message{msg}, p.pending()...))
		}
	}
}

// pending takes whatever is already queued, up to one batch.
func (p *KafkaPublisher) pending() []kafka.Message {
	var batch []kafka.Message
	for len(batch) < kafkaBatchSize-1 {
		select {
		case msg := <-p.queue:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
	return batch
}

func (p *KafkaPublisher) drain() {
	for {
		batch := p.pending()
		if len(batch) == 0 {
			return
		}
		p.write(batch)
	}
}

func (p *KafkaPublisher) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, batch...); err != nil {
		p.log.Warn("write failed", slog.Int("messages", len(batch)), slog.Any("error", err))
		for range batch {
			p.onFail()
		}
	}
}
