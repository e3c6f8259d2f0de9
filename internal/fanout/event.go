// Package fanout pushes domain events to realtime subscribers. Delivery is
// at-most-once: a slow subscriber loses events instead of blocking publishers.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

const (
	TopicChannel   = "channel"
	TopicThread    = "thread"
	TopicUser      = "user"
	TopicWorkspace = "workspace"
)

var ErrInvalidTopic = errors.New("invalid_topic")

// Publisher is the port every producer depends on.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload any) error
}

type Event struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	PublishedAt time.Time       `json:"publishedAt"`
}

func NewEvent(topic, eventType string, payload any) (Event, error) {
	topic = strings.TrimSpace(topic)
	if _, _, err := ParseTopic(topic); err != nil {
		return Event{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		ID:          ulid.Make().String(),
		Topic:       topic,
		Type:        eventType,
		Data:        data,
		PublishedAt: time.Now().UTC(),
	}, nil
}

func ChannelTopic(id snowflake.ID) string   { return TopicChannel + ":" + id.String() }
func ThreadTopic(id snowflake.ID) string    { return TopicThread + ":" + id.String() }
func UserTopic(id snowflake.ID) string      { return TopicUser + ":" + id.String() }
func WorkspaceTopic(id snowflake.ID) string { return TopicWorkspace + ":" + id.String() }

// ParseTopic splits "kind:id" and validates both halves.
func ParseTopic(topic string) (string, snowflake.ID, error) {
	kind, rawID, ok := strings.Cut(strings.TrimSpace(topic), ":")
	if !ok {
		return "", 0, ErrInvalidTopic
	}
	switch kind {
	case TopicChannel, TopicThread, TopicUser, TopicWorkspace:
	default:
		return "", 0, ErrInvalidTopic
	}
	id, err := snowflake.ParseString(rawID)
	if err != nil || id <= 0 {
		return "", 0, ErrInvalidTopic
	}
	return kind, id, nil
}
