package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// ErrClientClosed is returned by a Reader whose client was closed.
var ErrClientClosed = errors.New("kafka client closed")

// Concrete franz-go based constructor, writer, and reader wrappers.

type Config struct {
	Brokers     []string
	TLS         *tls.Config
	Acks        *kgo.Acks
	Idempotent  bool
	ClientID    string
	Compression []kgo.CompressionCodec
}

func (cfg Config) baseOpts() []kgo.Opt {
	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...), kgo.AllowAutoTopicCreation()}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	return opts
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, value []byte) error {
	return w.cl.ProduceSync(ctx, &kgo.Record{Topic: topic, Value: value}).FirstErr()
}

type kgoReader struct{ cl *kgo.Client }

func (r kgoReader) Poll(ctx context.Context) ([]Record, error) {
	fetches := r.cl.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, ErrClientClosed
	}

	var errs []error

	fetches.EachError(func(topic string, partition int32, err error) {
		errs = append(errs, fmt.Errorf("%s[%d]: %w", topic, partition, err))
	})

	records := make([]Record, 0, fetches.NumRecords())
	fetches.EachRecord(func(rec *kgo.Record) {
		records = append(records, Record{Topic: rec.Topic, Value: rec.Value})
	})

	return records, errors.Join(errs...)
}

func (r kgoReader) Close() { r.cl.Close() }

// NewWithKgo builds a franz-go client based Broker. Each consumed topic opens its own client
// joined to a consumer group named after the topic.
func NewWithKgo(cfg Config, logger zerolog.Logger) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers required: %w", berr.ErrBrokerUnavailable)
	}

	opts := cfg.baseOpts()
	if !cfg.Idempotent {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}

	if cfg.Acks != nil {
		opts = append(opts, kgo.RequiredAcks(*cfg.Acks))
	}

	if len(cfg.Compression) > 0 {
		opts = append(opts, kgo.ProducerBatchCompression(cfg.Compression...))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka client init: %w", errors.Join(berr.ErrBrokerUnavailable, err))
	}

	readers := func(topic string) (Reader, error) {
		rc, err := kgo.NewClient(append(cfg.baseOpts(),
			kgo.ConsumerGroup(topic),
			kgo.ConsumeTopics(topic),
		)...)
		if err != nil {
			return nil, err
		}

		return kgoReader{cl: rc}, nil
	}

	b := New(kgoWriter{cl: cl}, readers, logger)
	b.closeFn = cl.Close

	return b, nil
}
