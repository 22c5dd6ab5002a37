package kafkapublisher

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/eventpb"
)

const (
	HeaderWorkflow  = "workflow"
	HeaderStatusNew = "status_new"
	HeaderPathType  = "path_type"

	// HeaderContentType is only set for non JSON encodings.
	HeaderContentType = "content-type"
)

type Option func(p *Publisher)

// WithProtobuf encodes events with eventpb instead of JSON.
func WithProtobuf() Option {
	return func(p *Publisher) {
		p.Encode = eventpb.Marshal
		p.ContentType = eventpb.ContentType
	}
}

func newConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll

	return config
}

// New connects a synchronous producer to brokers. Events are keyed by workflow and entity id so that every event
// of one entity lands on the same partition in commit order.
func New(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, newConfig())
	if err != nil {
		return nil, err
	}

	return NewWithProducer(producer, topic, opts...), nil
}

func NewWithProducer(producer sarama.SyncProducer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		Topic:   topic,
		Writer:  producer,
		Backoff: time.Millisecond * 100,
		Encode:  encodeJSON,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

type Publisher struct {
	Topic       string
	Writer      sarama.SyncProducer
	Backoff     time.Duration
	Encode      func(e statusflow.TransitionEvent) ([]byte, error)
	ContentType string
}

func encodeJSON(e statusflow.TransitionEvent) ([]byte, error) {
	return json.Marshal(e)
}

var _ statusflow.Publisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, e statusflow.TransitionEvent) error {
	value, err := p.Encode(e)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.Topic,
		Key:   sarama.StringEncoder(statusflow.LockKey(e.Workflow, e.EntityID)),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderWorkflow), Value: []byte(e.Workflow)},
			{Key: []byte(HeaderStatusNew), Value: []byte(strconv.Itoa(e.StatusNew))},
			{Key: []byte(HeaderPathType), Value: []byte(e.PathType)},
		},
		Timestamp: e.OccurredAt,
	}
	if p.ContentType != "" {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(HeaderContentType), Value: []byte(p.ContentType)})
	}

	for ctx.Err() == nil {
		_, _, err := p.Writer.SendMessage(msg)
		if err != nil && (errors.Is(err, sarama.ErrLeaderNotAvailable) || errors.Is(err, context.DeadlineExceeded)) {
			time.Sleep(p.Backoff)
			continue
		} else if err != nil {
			return err
		}

		break
	}

	return ctx.Err()
}

func (p *Publisher) Close() error {
	return p.Writer.Close()
}
