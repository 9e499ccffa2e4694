package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// CommandStream holds every command subject.
const CommandStream = "LAGG_COMMANDS"

// NATSSubscriber consumes workflow commands from JetStream and hands them
// to the dispatcher via commandChan.
type NATSSubscriber struct {
	js          jetstream.JetStream
	commandChan chan<- RawCommand
	consumers   []jetstream.ConsumeContext
	logger      zerolog.Logger
}

// RawCommand is a received but unparsed command message.
type RawCommand struct {
	Subject   string
	Data      []byte
	MessageID string // stable across redeliveries of the same message
	Timestamp time.Time
	AckFunc   func() // processed, do not redeliver
	NakFunc   func() // not processed, redeliver
	TermFunc  func() // malformed, never redeliver
}

// SubjectConfig maps a subject filter to a command and its durable consumer.
type SubjectConfig struct {
	Subject      string
	Command      string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns one durable consumer per command. The last subject
// token is the asset, e.g. lagg.commands.deposit.USDC.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "lagg.commands.deposit.>", Command: CommandDeposit, ConsumerName: "aggregator-deposit", StreamName: CommandStream},
		{Subject: "lagg.commands.borrow.>", Command: CommandBorrow, ConsumerName: "aggregator-borrow", StreamName: CommandStream},
		{Subject: "lagg.commands.redeem.>", Command: CommandRedeem, ConsumerName: "aggregator-redeem", StreamName: CommandStream},
		{Subject: "lagg.commands.repay.>", Command: CommandRepay, ConsumerName: "aggregator-repay", StreamName: CommandStream},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, commandChan chan<- RawCommand, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:          js,
		commandChan: commandChan,
		logger:      logger,
	}
}

// Subscribe creates a JetStream consumer for each configured subject.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				MessageID: messageID(msg),
				Timestamp: time.Now(),
				AckFunc:   func() { _ = msg.Ack() },
				NakFunc:   func() { _ = msg.Nak() },
				TermFunc:  func() { _ = msg.Term() },
			}

			select {
			case ns.commandChan <- raw:
			case <-ctx.Done():
				_ = msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// messageID prefers the publisher's Nats-Msg-Id and falls back to the
// stream sequence, which JetStream keeps across redeliveries.
func messageID(msg jetstream.Msg) string {
	if id := msg.Headers().Get(jetstream.MsgIDHeader); id != "" {
		return id
	}
	md, err := msg.Metadata()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s:%d", md.Stream, md.Sequence.Stream)
}

// EnsureStreams creates the command stream if it does not exist.
// Commands are work items: the stream keeps each one until acknowledged.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	cfg := jetstream.StreamConfig{
		Name:      CommandStream,
		Subjects:  []string{"lagg.commands.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	}
	if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.Name, err)
	}
	logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("lending-aggregator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
