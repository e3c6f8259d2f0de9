// Package access decides whether a principal may act on a workspace or channel.
// Decisions are derived from storage on every call.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ReasonNotWorkspaceMember  = "not_workspace_member"
	ReasonWorkspaceMismatch   = "workspace_mismatch"
	ReasonPrivateChannel      = "private_channel"
	ReasonOutsideChannelScope = "outside_channel_scope"
)

var ErrForbidden = errors.New("forbidden")

// DeniedError carries the denial reason and matches ErrForbidden.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return ErrForbidden
}

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Err converts a denial into a *DeniedError.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

type GateParams struct {
	fx.In

	Log        *zap.Logger
	Workspaces workspacedomain.Service
}

type Gate struct {
	log        *zap.Logger
	workspaces workspacedomain.Service
}

func NewGate(p GateParams) *Gate {
	return &Gate{
		log:        p.Log.Named("access.gate"),
		workspaces: p.Workspaces,
	}
}

func (g *Gate) CheckWorkspace(ctx context.Context, p gatewaydomain.Principal, workspaceID snowflake.ID) (Decision, error) {
	if p.ActsAsUser() {
		if p.UserID == nil {
			return deny(ReasonNotWorkspaceMember), nil
		}
		_, err := g.workspaces.GetMember(ctx, workspaceID, *p.UserID)
		if errors.Is(err, workspacedomain.ErrNotWorkspaceMember) {
			return deny(ReasonNotWorkspaceMember), nil
		}
		if err != nil {
			return Decision{}, err
		}
		return allow(), nil
	}

	if p.WorkspaceID != workspaceID {
		return deny(ReasonWorkspaceMismatch), nil
	}
	return allow(), nil
}

// CheckChannel resolves the channel and applies workspace, scope and
// privacy rules. The channel is returned even on denial.
func (g *Gate) CheckChannel(ctx context.Context, p gatewaydomain.Principal, channelID snowflake.ID) (*workspacedomain.Channel, Decision, error) {
	channel, err := g.workspaces.GetChannel(ctx, channelID)
	if err != nil {
		return nil, Decision{}, err
	}

	decision, err := g.CheckWorkspace(ctx, p, channel.WorkspaceID)
	if err != nil || !decision.Allowed {
		return channel, decision, err
	}

	if p.Kind == gatewaydomain.KindIncomingWebhook && p.ChannelID != nil {
		if *p.ChannelID != channel.ID {
			return channel, deny(ReasonOutsideChannelScope), nil
		}
		return channel, allow(), nil
	}

	if !channel.IsPrivate {
		return channel, allow(), nil
	}

	// Integrations reach private channels only through their creating user.
	if p.UserID == nil {
		return channel, deny(ReasonPrivateChannel), nil
	}
	isMember, err := g.workspaces.IsChannelMember(ctx, channel.ID, *p.UserID)
	if err != nil {
		return channel, Decision{}, err
	}
	if !isMember {
		return channel, deny(ReasonPrivateChannel), nil
	}
	return channel, allow(), nil
}

// RequireChannel is CheckChannel folded into a single error.
func (g *Gate) RequireChannel(ctx context.Context, p gatewaydomain.Principal, channelID snowflake.ID) (*workspacedomain.Channel, error) {
	channel, decision, err := g.CheckChannel(ctx, p, channelID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		g.log.Debug("channel access denied",
			zap.String("channel_id", channelID.String()),
			zap.String("principal_kind", string(p.Kind)),
			zap.String("reason", decision.Reason),
		)
		return nil, decision.Err()
	}
	return channel, nil
}

func (g *Gate) RequireWorkspace(ctx context.Context, p gatewaydomain.Principal, workspaceID snowflake.ID) error {
	decision, err := g.CheckWorkspace(ctx, p, workspaceID)
	if err != nil {
		return err
	}
	return decision.Err()
}
