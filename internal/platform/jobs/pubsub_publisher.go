package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/openstats/data-api/internal/services"
)

// PubSubVersionEventPublisher pushes mapping status and finalise events to
// the release workflow's Pub/Sub topics.
type PubSubVersionEventPublisher struct {
	statusTopic    *pubsub.Topic
	finalizedTopic *pubsub.Topic
	marshal        func(any) ([]byte, error)
}

// NewPubSubVersionEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubVersionEventPublisher(statusTopic, finalizedTopic *pubsub.Topic) (*PubSubVersionEventPublisher, error) {
	if statusTopic == nil {
		return nil, errors.New("pubsub event publisher: status topic is required")
	}
	if finalizedTopic == nil {
		return nil, errors.New("pubsub event publisher: finalized topic is required")
	}
	return &PubSubVersionEventPublisher{
		statusTopic:    statusTopic,
		finalizedTopic: finalizedTopic,
		marshal:        json.Marshal,
	}, nil
}

// PublishMappingStatus emits a derived-status change notification.
func (p *PubSubVersionEventPublisher) PublishMappingStatus(ctx context.Context, event services.MappingStatusEvent) error {
	if p == nil || p.statusTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal mapping status event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "versionId", event.VersionID)
	setAttr(attrs, "trigger", event.Trigger)
	attrs["complete"] = strconv.FormatBool(event.Status.Complete)

	result := p.statusTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish mapping status event: %w", err)
	}
	return nil
}

// PublishVersionFinalized emits the finalise decision together with the
// minted element identifiers.
func (p *PubSubVersionEventPublisher) PublishVersionFinalized(ctx context.Context, event services.VersionFinalizedEvent) error {
	if p == nil || p.finalizedTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal version finalized event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "versionId", event.VersionID)
	setAttr(attrs, "nextVersion", event.NextVersion)
	attrs["hasMajorVersionUpdate"] = strconv.FormatBool(event.Status.HasMajorVersionUpdate)

	result := p.finalizedTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish version finalized event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.VersionEventPublisher = (*PubSubVersionEventPublisher)(nil)
