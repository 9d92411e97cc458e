package kafka

import (
	"context"
	"strings"

	"payout-controlplane/pkg/config"

	k "github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("kafka.producer",
	fx.Provide(New),
)

// Producer publishes raw messages. Delivery reports are consumed in the
// background and failures are only logged.
type Producer interface {
	Publish(topic string, key, value []byte) error
}

// ConfigMap builds the librdkafka settings for the producer.
func ConfigMap(c *config.Config) *k.ConfigMap {
	cfg := k.ConfigMap{}

	if c.Kafka.Username != "" {
		cfg["sasl.mechanism"] = "PLAIN"
		cfg["sasl.username"] = c.Kafka.Username
		cfg["sasl.password"] = c.Kafka.Password
		cfg["security.protocol"] = "sasl_ssl"
	}
	_ = cfg.SetKey("bootstrap.servers", strings.TrimSpace(c.Kafka.Addrs))
	_ = cfg.SetKey("client.id", c.AppName)
	_ = cfg.SetKey("acks", "all")
	_ = cfg.SetKey("retry.backoff.ms", 500)
	_ = cfg.SetKey("socket.max.fails", 10)
	_ = cfg.SetKey("reconnect.backoff.ms", 200)
	_ = cfg.SetKey("reconnect.backoff.max.ms", 5000)
	_ = cfg.SetKey("request.timeout.ms", 5000)

	return &cfg
}

type producer struct {
	p *k.Producer
}

// New returns nil when no broker is configured so callers can fall back
// to a no-op sink.
func New(lc fx.Lifecycle, c *config.Config) (Producer, error) {
	if c.Kafka.Addrs == "" {
		zap.L().Info("[Kafka] no brokers configured, producer disabled")
		return nil, nil
	}

	p, err := k.NewProducer(ConfigMap(c))
	if err != nil {
		return nil, err
	}

	go func() {
		for e := range p.Events() {
			switch ev := e.(type) {
			case *k.Message:
				if ev.TopicPartition.Error != nil {
					zap.L().Error("[Kafka] delivery failed",
						zap.Stringp("topic", ev.TopicPartition.Topic),
						zap.Error(ev.TopicPartition.Error),
					)
				}
			case k.Error:
				zap.L().Warn("[Kafka] producer error", zap.Error(ev))
			}
		}
	}()

	zap.L().Info("[Kafka] producer ready", zap.String("brokers", c.Kafka.Addrs))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			p.Flush(5000)
			p.Close()
			return nil
		},
	})

	return &producer{p: p}, nil
}

func (p *producer) Publish(topic string, key, value []byte) error {
	return p.p.Produce(&k.Message{
		TopicPartition: k.TopicPartition{Topic: &topic, Partition: k.PartitionAny},
		Key:            key,
		Value:          value,
	}, nil)
}
