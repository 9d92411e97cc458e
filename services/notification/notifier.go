package notification

import (
	"context"
	"encoding/json"
	"time"

	"payout-controlplane/pkg/config"
	"payout-controlplane/pkg/kafka"
	"payout-controlplane/pkg/logger"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const DefaultTopic = "payout.notifications"

type EventType string

const (
	ReferralJoined    EventType = "referral.joined"
	SubmissionCreated EventType = "submission.created"
	SubmissionDecided EventType = "submission.decided"
	WithdrawalCreated EventType = "withdrawal.created"
	WithdrawalDecided EventType = "withdrawal.decided"
)

type Audience string

const (
	AudienceUser   Audience = "user"
	AudienceAdmins Audience = "admins"
)

type Event struct {
	Type       EventType      `json:"type"`
	UserID     string         `json:"user_id,omitempty"`
	Audience   Audience       `json:"audience"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier is fire-and-forget: implementations never return delivery errors
// to the workflow that raised the event.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

type KafkaNotifier struct {
	producer kafka.Producer
	topic    string
}

func NewKafkaNotifier(producer kafka.Producer, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Notify(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		logger.FromContext(ctx).Error("failed to marshal notification", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}

	key := event.UserID
	if key == "" {
		key = string(event.Audience)
	}

	if err := n.producer.Publish(n.topic, []byte(key), value); err != nil {
		logger.FromContext(ctx).Warn("failed to publish notification",
			zap.String("type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

type Params struct {
	fx.In
	Config   *config.Config
	Producer kafka.Producer `optional:"true"`
}

func ProvideNotifier(p Params) Notifier {
	if p.Producer == nil {
		return NopNotifier{}
	}
	return NewKafkaNotifier(p.Producer, p.Config.Kafka.Topic)
}

var Module = fx.Module("notification",
	fx.Provide(ProvideNotifier),
)
