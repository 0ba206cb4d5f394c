// Package broker relays stored messages between server replicas over NATS
// JetStream, so a message reaches recipients connected to any replica.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/johndosdos/chatrooms/internal/model"
)

// Dispatcher delivers a message to the recipients connected to this replica.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.Message, recipients []int64) error
}

// Envelope is what travels between replicas.
type Envelope struct {
	Message    model.Message `json:"message"`
	Recipients []int64       `json:"recipients"`
}

// EnsureStream creates the fan-out stream or updates it to the current
// config.
func EnsureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectAll},
		Storage:   jetstream.MemoryStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    streamMaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create or update stream [%s]: %w", StreamName, err)
	}

	return stream, nil
}

// Publisher hands messages to every replica instead of delivering them
// locally.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

func (p *Publisher) Dispatch(ctx context.Context, msg model.Message, recipients []int64) error {
	if p.js == nil {
		return errors.New("jetstream interface is nil")
	}

	data, err := json.Marshal(Envelope{Message: msg, Recipients: recipients})
	if err != nil {
		return fmt.Errorf("could not encode envelope to JSON: %w", err)
	}

	subject := RoomSubject(msg.ChatRoomID)
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(uuid.NewString()))
	if err != nil {
		return fmt.Errorf("failed to publish to [%s]: %w", subject, err)
	}

	slog.DebugContext(ctx, "message published",
		"subject", subject,
		"message_id", msg.ID,
		"sequence", ack.Sequence)

	return nil
}

// Subscribe consumes the stream from now on and delivers each envelope to
// local. Every replica runs its own ordered consumer, so every replica sees
// every message. It blocks until ctx is done.
func Subscribe(ctx context.Context, stream jetstream.Stream, local Dispatcher) error {
	consumer, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SubjectAll},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(m jetstream.Msg) {
		if err := deliver(ctx, m.Data(), local); err != nil {
			slog.WarnContext(ctx, "could not deliver envelope",
				"subject", m.Subject(),
				"error", err)
		}
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		slog.WarnContext(ctx, "consumer error", "error", err)
	}))
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	<-ctx.Done()
	consumeCtx.Drain()

	return nil
}

func deliver(ctx context.Context, data []byte, local Dispatcher) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("could not decode envelope: %w", err)
	}
	if env.Message.ID == 0 || len(env.Recipients) == 0 {
		return fmt.Errorf("incomplete envelope for message %d", env.Message.ID)
	}

	return local.Dispatch(ctx, env.Message, env.Recipients)
}
