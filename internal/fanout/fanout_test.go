package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	kind, id, err := ParseTopic("channel:42")
	require.NoError(t, err)
	assert.Equal(t, TopicChannel, kind)
	assert.Equal(t, snowflake.ID(42), id)

	for _, bad := range []string{"", "channel", "room:1", "channel:abc", "thread:-1", "user:0"} {
		_, _, err := ParseTopic(bad)
		assert.ErrorIs(t, err, ErrInvalidTopic, bad)
	}
	assert.Equal(t, "workspace:7", WorkspaceTopic(7))
	assert.Equal(t, "thread:9", ThreadTopic(9))
}

func TestHubDeliversToSubscribersOfTopicOnly(t *testing.T) {
	hub := NewHub(0, 0)
	ctx := context.Background()

	sub, backlog, err := hub.Subscribe(ChannelTopic(1))
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, backlog)

	other, _, err := hub.Subscribe(ChannelTopic(2))
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, hub.Publish(ctx, ChannelTopic(1), "message.created", map[string]string{"content": "hi"}))

	event := <-sub.Events()
	assert.Equal(t, "message.created", event.Type)
	assert.Equal(t, "channel:1", event.Topic)
	assert.Len(t, event.ID, 26)
	assert.JSONEq(t, `{"content":"hi"}`, string(event.Data))

	select {
	case unexpected := <-other.Events():
		t.Fatalf("unexpected event on channel:2: %+v", unexpected)
	default:
	}
}

func TestHubReplaysBacklogAndTrimsRing(t *testing.T) {
	hub := NewHub(3, 16)
	ctx := context.Background()

	first, _, err := hub.Subscribe(ThreadTopic(5))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, hub.Publish(ctx, ThreadTopic(5), "message.created", i))
	}

	second, backlog, err := hub.Subscribe(ThreadTopic(5))
	require.NoError(t, err)
	defer second.Close()
	require.Len(t, backlog, 3)
	assert.Equal(t, "2", string(backlog[0].Data))
	assert.Equal(t, "4", string(backlog[2].Data))

	first.Close()
	first.Close()
	assert.Equal(t, 1, hub.Subscribers(ThreadTopic(5)))
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(10, 1)
	ctx := context.Background()

	sub, _, err := hub.Subscribe(UserTopic(3))
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 4; i++ {
		require.NoError(t, hub.Publish(ctx, UserTopic(3), "notification.created", i))
	}
	assert.Len(t, sub.Events(), 1)
}

func TestHubRejectsInvalidTopic(t *testing.T) {
	hub := NewHub(0, 0)
	_, _, err := hub.Subscribe("lobby")
	assert.ErrorIs(t, err, ErrInvalidTopic)
	assert.ErrorIs(t, hub.Publish(context.Background(), "lobby", "x", nil), ErrInvalidTopic)
}

func TestUnsubscribeRemovesEmptyStream(t *testing.T) {
	hub := NewHub(0, 0)
	sub, _, err := hub.Subscribe(WorkspaceTopic(8))
	require.NoError(t, err)
	sub.Close()

	assert.Zero(t, hub.Subscribers(WorkspaceTopic(8)))
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.streams)
}

func TestDecodeRelayedFallsBackToChannelName(t *testing.T) {
	payload, err := json.Marshal(Event{ID: "01J", Type: "message.deleted", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)

	event, err := decodeRelayed(&redis.Message{Channel: redisChannelPrefix + "channel:11", Payload: string(payload)})
	require.NoError(t, err)
	assert.Equal(t, "channel:11", event.Topic)

	_, err = decodeRelayed(&redis.Message{Channel: redisChannelPrefix + "nope", Payload: string(payload)})
	assert.Error(t, err)

	_, err = decodeRelayed(&redis.Message{Channel: "x", Payload: "{"})
	assert.Error(t, err)
}

func TestNewEventRejectsUnencodablePayload(t *testing.T) {
	_, err := NewEvent(ChannelTopic(1), "message.created", func() {})
	assert.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "message.created")
}
