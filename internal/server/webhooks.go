package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/larrybwosi/workspace-sub003/internal/access"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	"github.com/larrybwosi/workspace-sub003/internal/observability/logger"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	"github.com/larrybwosi/workspace-sub003/internal/webhook/inbound"
	"github.com/larrybwosi/workspace-sub003/pkg/db/pagination"
	"go.uber.org/zap"
)

const defaultInboundBodyLimit = 1 << 20

type listDeliveriesQuery struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"`
}

func (s *Server) RegisterWebhook(c *gin.Context) {
	principal, err := userFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	channelID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req webhookdomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	channel, err := s.gate.RequireChannel(ctx, principal, channelID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	registered, err := s.webhooks.Register(ctx, principal.AuthorID(), channel.WorkspaceID, &channel.ID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": registered})
}

// ProvisionChannelIncoming issues a token and secret bound to one channel.
func (s *Server) ProvisionChannelIncoming(c *gin.Context) {
	principal, err := userFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	channelID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req webhookdomain.ProvisionIncomingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	channel, err := s.gate.RequireChannel(ctx, principal, channelID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cred, err := s.webhooks.ProvisionIncoming(ctx, principal.AuthorID(), channel.WorkspaceID, &channel.ID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": cred})
}

// ProvisionWorkspaceIncoming issues a workspace level credential addressed by
// its id.
func (s *Server) ProvisionWorkspaceIncoming(c *gin.Context) {
	principal, err := userFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	workspaceID, err := resolvedWorkspace(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req webhookdomain.ProvisionIncomingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cred, err := s.webhooks.ProvisionIncoming(c.Request.Context(), principal.AuthorID(), workspaceID, nil, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": cred})
}

func (s *Server) ListWebhooks(c *gin.Context) {
	workspaceID, err := resolvedWorkspace(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	hooks, err := s.webhooks.List(c.Request.Context(), workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": hooks})
}

func (s *Server) ListWebhookDeliveries(c *gin.Context) {
	webhookID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listDeliveriesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	page, err := s.webhooks.ListDeliveries(c.Request.Context(), webhookID, pagination.Pagination{
		Cursor: strings.TrimSpace(query.Cursor),
		Limit:  query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": page.Deliveries, "page_info": page.PageInfo})
}

func (s *Server) DeactivateWebhook(c *gin.Context) {
	principal, err := userFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	webhookID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.webhooks.Deactivate(c.Request.Context(), principal.AuthorID(), webhookID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// IncomingWebhook is the inbound dispatcher. The raw body is read once and
// handed over untouched so the signature covers exactly what was sent.
func (s *Server) IncomingWebhook(c *gin.Context) {
	if s.inbound == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	limit := s.cfg.Webhook.InboundBodyLimit
	if limit <= 0 {
		limit = defaultInboundBodyLimit
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	cred := incomingCredential(c, body)
	c.Set(contextCredentialKindKey, string(cred.Kind()))

	result, err := s.inbound.Handle(c.Request.Context(), inbound.Request{Credential: cred, Body: body})
	if err != nil {
		var denied *access.DeniedError
		if !errors.As(err, &denied) && !isUnauthorizedError(err) {
			logger.FromContext(c.Request.Context()).Debug("inbound webhook rejected", zap.Error(err))
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func incomingCredential(c *gin.Context, body []byte) gatewaydomain.Credential {
	if key := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); key != "" {
		return gatewaydomain.PersonalKey{Key: key}
	}
	return gatewaydomain.WebhookSecret{
		WebhookID: strings.TrimSpace(c.GetHeader(HeaderWebhookID)),
		Token:     strings.TrimSpace(c.GetHeader(HeaderWebhookToken)),
		Signature: strings.TrimSpace(c.GetHeader(HeaderWebhookSignature)),
		Body:      body,
	}
}
