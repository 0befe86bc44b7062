package event

import (
	"context"
	"edu_practice_backend/internal/config"
	"edu_practice_backend/internal/model"
	"edu_practice_backend/internal/util"
	"edu_practice_backend/pkg/logger"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

const (
	ModeSync      = "sync"
	ModeGoChannel = "gochannel"
	ModeKafka     = "kafka"
)

// OutcomeHandler 消费作答结果的一方（错题复习调度）
type OutcomeHandler interface {
	RecordSubmissionOutcome(ctx context.Context, outcome model.SubmissionOutcome) error
}

// Bus 作答结果事件总线
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	// gochannel 模式下发布与订阅是同一个实例
	shared bool
}

func NewBus(cfg config.EventsConfig) (*Bus, error) {
	wlog := newZapLoggerAdapter(logger.Log)
	topic := cfg.Topic
	if topic == "" {
		topic = "submission.outcome"
	}

	switch cfg.Mode {
	case ModeKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("events.kafka_brokers is required in kafka mode")
		}
		pub, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			Marshaler: kafka.DefaultMarshaler{},
		}, wlog)
		if err != nil {
			return nil, fmt.Errorf("create kafka publisher: %w", err)
		}
		sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
			Brokers:               cfg.KafkaBrokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
			ConsumerGroup:         cfg.ConsumerGroup,
		}, wlog)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("create kafka subscriber: %w", err)
		}
		return &Bus{publisher: pub, subscriber: sub, topic: topic}, nil
	case ModeGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wlog)
		return &Bus{publisher: ch, subscriber: ch, topic: topic, shared: true}, nil
	default:
		return nil, fmt.Errorf("unsupported events mode %q", cfg.Mode)
	}
}

// RecordSubmissionOutcome 发布事件，由 ConsumeOutcomes 异步落到错题本
func (b *Bus) RecordSubmissionOutcome(ctx context.Context, outcome model.SubmissionOutcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("student_id", strconv.FormatUint(uint64(outcome.StudentID), 10))
	msg.Metadata.Set("source", outcome.Source)
	msg.SetContext(ctx)
	return b.publisher.Publish(b.topic, msg)
}

// ConsumeOutcomes 订阅后立即返回，消息在后台协程中处理，ctx 取消时停止
func (b *Bus) ConsumeOutcomes(ctx context.Context, handler OutcomeHandler) error {
	messages, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			b.handle(msg, handler)
		}
	}()
	return nil
}

func (b *Bus) handle(msg *message.Message, handler OutcomeHandler) {
	var outcome model.SubmissionOutcome
	if err := json.Unmarshal(msg.Payload, &outcome); err != nil {
		logger.Log.Error("drop malformed outcome event", zap.String("messageID", msg.UUID), zap.Error(err))
		msg.Ack()
		return
	}

	if err := handler.RecordSubmissionOutcome(msg.Context(), outcome); err != nil {
		if errors.Is(err, util.ErrConcurrentModification) {
			logger.Log.Warn("outcome event conflicted, redelivering", zap.String("messageID", msg.UUID))
			msg.Nack()
			return
		}
		logger.Log.Error("failed to apply outcome event",
			zap.String("messageID", msg.UUID),
			zap.Uint("studentID", outcome.StudentID),
			zap.Uint("questionID", outcome.QuestionID),
			zap.Error(err),
		)
	}
	msg.Ack()
}

func (b *Bus) Close() error {
	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if !b.shared {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
