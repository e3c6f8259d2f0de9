package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	"github.com/larrybwosi/workspace-sub003/internal/fanout"
	notificationdomain "github.com/larrybwosi/workspace-sub003/internal/notification/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifyMentionsSkipsAuthorAndDuplicates(t *testing.T) {
	conn, err := db.NewTest(&notificationdomain.Notification{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	hub := fanout.NewHub(0, 0)

	svc := New(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)),
		Publisher: hub,
	})

	author := node.Generate()
	alice := node.Generate()
	bob := node.Generate()

	sub, _, err := hub.Subscribe(fanout.UserTopic(alice))
	require.NoError(t, err)
	defer sub.Close()

	records, err := svc.NotifyMentions(context.Background(), notificationdomain.MentionRequest{
		WorkspaceID: node.Generate(),
		ChannelID:   node.Generate(),
		MessageID:   node.Generate(),
		ActorID:     &author,
		UserIDs:     []snowflake.ID{alice, author, bob, alice},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, alice, records[0].UserID)
	assert.Equal(t, bob, records[1].UserID)

	event := <-sub.Events()
	assert.Equal(t, "notification.created", event.Type)

	unread, err := svc.ListUnread(context.Background(), alice, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	require.NoError(t, svc.MarkRead(context.Background(), alice, unread[0].ID))
	unread, err = svc.ListUnread(context.Background(), alice, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)

	assert.ErrorIs(t, svc.MarkRead(context.Background(), bob, records[0].ID), notificationdomain.ErrNotificationNotFound)
}

func TestNotifyMentionsWithNobodyToNotify(t *testing.T) {
	conn, err := db.NewTest(&notificationdomain.Notification{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(6)
	require.NoError(t, err)
	svc := New(Params{DB: conn, Log: zap.NewNop(), GenID: node, Clock: clock.NewSystemClock()})

	author := node.Generate()
	records, err := svc.NotifyMentions(context.Background(), notificationdomain.MentionRequest{ActorID: &author, UserIDs: []snowflake.ID{author}})
	require.NoError(t, err)
	assert.Empty(t, records)
}
