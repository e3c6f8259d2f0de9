package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditcontext "github.com/larrybwosi/workspace-sub003/internal/auditcontext"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	obscontext "github.com/larrybwosi/workspace-sub003/internal/observability/context"
	"github.com/larrybwosi/workspace-sub003/internal/workspacecontext"
)

const (
	HeaderAPIKey             = "x-api-key"
	HeaderWebhookID          = "x-webhook-id"
	HeaderWebhookToken       = "x-webhook-token"
	HeaderWebhookSignature   = "x-webhook-signature"
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"

	contextPrincipalKey      = "principal"
	contextCredentialKindKey = "credential_kind"
)

// UserRequired authenticates interactive callers with the session cookie, a
// bearer session or a personal key.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if key := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); key != "" {
			principal, err := s.gateway.Authenticate(ctx, gatewaydomain.PersonalKey{Key: key})
			if err != nil {
				AbortWithError(c, err)
				return
			}
			bindPrincipal(c, *principal)
			c.Next()
			return
		}

		raw := s.sessionToken(c)
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		user, err := s.identity.ResolveSession(ctx, raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		bindPrincipal(c, gatewaydomain.UserPrincipal(user.ID))
		c.Next()
	}
}

// IntegrationRequired guards /v1 routes: authenticate, rate limit, then
// scope. Quota headers are written whenever authentication succeeded.
func (s *Server) IntegrationRequired(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cred gatewaydomain.Credential
		if key := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); key != "" {
			cred = gatewaydomain.PersonalKey{Key: key}
		} else if token, ok := bearerToken(c); ok {
			cred = gatewaydomain.WorkspaceToken{Token: token}
		} else {
			AbortWithError(c, gatewaydomain.ErrMissingCredential)
			return
		}

		principal, err := s.gateway.Guard(c.Request.Context(), cred, scope)
		if principal != nil {
			writeQuotaHeaders(c, *principal)
			c.Set(contextCredentialKindKey, string(principal.Kind))
		}
		if err != nil {
			AbortWithError(c, err)
			return
		}

		bindPrincipal(c, *principal)
		c.Next()
	}
}

// RequireScope holds personal keys to their scopes on user routes. Session
// principals carry every scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := principalFrom(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !gatewaydomain.HasPermission(principal, scope) {
			AbortWithError(c, gatewaydomain.ErrInsufficientScope)
			return
		}
		c.Next()
	}
}

func bindPrincipal(c *gin.Context, p gatewaydomain.Principal) {
	c.Set(contextPrincipalKey, p)
	c.Set(contextCredentialKindKey, string(p.Kind))

	ctx := c.Request.Context()
	ctx = obscontext.WithActor(ctx, p.ActorType(), p.ActorID())
	ctx = auditcontext.WithActor(ctx, p.ActorType(), p.ActorID())
	if p.WorkspaceID != 0 {
		ctx = obscontext.WithWorkspaceID(ctx, p.WorkspaceID.String())
		ctx = workspacecontext.WithWorkspaceID(ctx, p.WorkspaceID)
	}
	c.Request = c.Request.WithContext(ctx)
}

func principalFrom(c *gin.Context) (gatewaydomain.Principal, error) {
	value, ok := c.Get(contextPrincipalKey)
	if !ok {
		return gatewaydomain.Principal{}, ErrUnauthorized
	}
	principal, ok := value.(gatewaydomain.Principal)
	if !ok {
		return gatewaydomain.Principal{}, ErrUnauthorized
	}
	return principal, nil
}

// userFrom returns the acting user for routes that only make sense for a
// person.
func userFrom(c *gin.Context) (gatewaydomain.Principal, error) {
	principal, err := principalFrom(c)
	if err != nil {
		return principal, err
	}
	if principal.AuthorID() == 0 {
		return principal, ErrForbidden
	}
	return principal, nil
}

func writeQuotaHeaders(c *gin.Context, p gatewaydomain.Principal) {
	quota, ok := gatewaydomain.QuotaOf(p)
	if !ok {
		return
	}
	c.Header(HeaderRateLimitLimit, strconv.FormatInt(quota.Limit, 10))
	c.Header(HeaderRateLimitRemaining, strconv.FormatInt(quota.Remaining, 10))
}

func (s *Server) sessionToken(c *gin.Context) string {
	if s.cfg.SessionCookieName != "" {
		if cookie, err := c.Cookie(s.cfg.SessionCookieName); err == nil && strings.TrimSpace(cookie) != "" {
			return strings.TrimSpace(cookie)
		}
	}
	if token, ok := bearerToken(c); ok {
		return token
	}
	return ""
}

func bearerToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}
