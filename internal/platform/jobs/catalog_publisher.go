package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/eurocoin-catalog/api/internal/services"
)

// PubSubCatalogPublisher publishes catalog change events to a Pub/Sub topic.
type PubSubCatalogPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubCatalogPublisher constructs a Pub/Sub backed catalog event publisher.
func NewPubSubCatalogPublisher(topic *pubsub.Topic) (*PubSubCatalogPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub catalog publisher: topic is required")
	}
	return &PubSubCatalogPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCatalogEvent sends the event and waits for the server-assigned message id.
func (p *PubSubCatalogPublisher) PublishCatalogEvent(ctx context.Context, event services.CatalogEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub catalog publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal catalog event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "kind", string(event.Kind))
	setAttr(attrs, "batchId", event.BatchID)
	if event.Inserted > 0 {
		attrs["inserted"] = strconv.Itoa(event.Inserted)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish catalog event: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubCatalogPublisher) Stop() {
	if p == nil || p.topic == nil {
		return
	}
	p.topic.Stop()
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
