package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Kind string

const (
	KindUser            Kind = "user"
	KindPersonalKey     Kind = "personal_key"
	KindWorkspaceToken  Kind = "workspace_token"
	KindIncomingWebhook Kind = "incoming_webhook"
)

const (
	ScopeAll              = "*"
	ScopeMessagesWrite    = "messages:write"
	ScopeMessagesRead     = "messages:read"
	ScopeChannelsWrite    = "channels:write"
	ScopeDepartmentsWrite = "departments:write"
	ScopeMembersWrite     = "members:write"
	ScopeWebhooksIncoming = "webhooks:incoming"
)

// Credential is one of PersonalKey, WorkspaceToken or WebhookSecret.
type Credential interface {
	Kind() Kind
}

type PersonalKey struct {
	Key string
}

func (PersonalKey) Kind() Kind { return KindPersonalKey }

type WorkspaceToken struct {
	Token string
}

func (WorkspaceToken) Kind() Kind { return KindWorkspaceToken }

// WebhookSecret identifies an incoming webhook either by its channel token or
// by its id. Signature is checked over the raw Body.
type WebhookSecret struct {
	WebhookID string
	Token     string
	Signature string
	Body      []byte
}

func (WebhookSecret) Kind() Kind { return KindIncomingWebhook }

// Principal is the authenticated caller.
type Principal struct {
	Kind         Kind
	WorkspaceID  snowflake.ID
	UserID       *snowflake.ID
	CredentialID snowflake.ID
	ChannelID    *snowflake.ID
	Permissions  []string
	RateLimit    int64
	// UsageCount is the counter observed before this request.
	UsageCount int64
	// Consumed is false when the request was not counted against the limit.
	Consumed  bool
	ExpiresAt *time.Time
}

func UserPrincipal(userID snowflake.ID) Principal {
	id := userID
	return Principal{Kind: KindUser, UserID: &id, CredentialID: userID, Permissions: []string{ScopeAll}}
}

// ActsAsUser reports whether membership checks run against the principal's user.
func (p Principal) ActsAsUser() bool {
	return p.Kind == KindUser || p.Kind == KindPersonalKey
}

// AuthorID is the user a message is attributed to; zero for integrations.
func (p Principal) AuthorID() snowflake.ID {
	if !p.ActsAsUser() || p.UserID == nil {
		return 0
	}
	return *p.UserID
}

func (p Principal) ActorType() string {
	switch p.Kind {
	case KindWorkspaceToken:
		return "api_token"
	case KindPersonalKey:
		return "api_key"
	case KindIncomingWebhook:
		return "incoming_webhook"
	case KindUser:
		return "user"
	default:
		return "system"
	}
}

func (p Principal) ActorID() string {
	if p.Kind == KindUser && p.UserID != nil {
		return p.UserID.String()
	}
	if p.CredentialID == 0 {
		return ""
	}
	return p.CredentialID.String()
}

// Source labels the ingress path of messages created by the principal.
func (p Principal) Source() string {
	switch p.Kind {
	case KindWorkspaceToken:
		return "api"
	case KindIncomingWebhook:
		return "webhook"
	case KindPersonalKey:
		return "api_key"
	default:
		return "user"
	}
}

// IsRateLimitExceeded is true once a workspace token's cumulative usage has
// reached its ceiling. Other credentials carry no persisted limit.
func IsRateLimitExceeded(p Principal) bool {
	if p.Kind != KindWorkspaceToken || p.RateLimit <= 0 {
		return false
	}
	return p.UsageCount >= p.RateLimit
}

// HasPermission matches the exact scope or the wildcard.
func HasPermission(p Principal, scope string) bool {
	for _, granted := range p.Permissions {
		if granted == ScopeAll || granted == scope {
			return true
		}
	}
	return false
}

type Quota struct {
	Limit     int64
	Remaining int64
}

// QuotaOf reports the quota after this request, or false when the principal
// has no persisted limit.
func QuotaOf(p Principal) (Quota, bool) {
	if p.Kind != KindWorkspaceToken || p.RateLimit <= 0 {
		return Quota{}, false
	}
	used := p.UsageCount
	if p.Consumed {
		used++
	}
	remaining := p.RateLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return Quota{Limit: p.RateLimit, Remaining: remaining}, true
}

var (
	ErrMissingCredential = errors.New("missing_credential")
	ErrInvalidCredential = errors.New("invalid_credential")
	ErrRateLimitExceeded = errors.New("rate_limit_exceeded")
	ErrInsufficientScope = errors.New("insufficient_scope")
	ErrSignatureMismatch = errors.New("signature_mismatch")
)

// Authenticator is the credential pipeline consumed by the HTTP middlewares.
type Authenticator interface {
	Authenticate(ctx context.Context, cred Credential) (*Principal, error)
	// Guard runs authenticate, rate limit and permission checks in order. The
	// principal is returned whenever authentication succeeded so callers can
	// still report quota.
	Guard(ctx context.Context, cred Credential, scope string) (*Principal, error)
}
