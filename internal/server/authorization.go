package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/larrybwosi/workspace-sub003/internal/observability/context"
	"github.com/larrybwosi/workspace-sub003/internal/workspacecontext"
)

const contextWorkspaceIDKey = "workspace_id"

// workspaceResolver finds the workspace a management route acts on.
type workspaceResolver func(c *gin.Context) (snowflake.ID, error)

// authorizeWorkspaceAction runs the role check for privileged management
// routes and stores the resolved workspace for the handler.
func (s *Server) authorizeWorkspaceAction(object, action string, resolve workspaceResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := userFrom(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		workspaceID, err := resolve(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authorizer.Authorize(c.Request.Context(), principal.AuthorID(), workspaceID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextWorkspaceIDKey, workspaceID)
		ctx := obscontext.WithWorkspaceID(c.Request.Context(), workspaceID.String())
		ctx = workspacecontext.WithWorkspaceID(ctx, workspaceID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func workspaceFromParam(name string) workspaceResolver {
	return func(c *gin.Context) (snowflake.ID, error) {
		return paramID(c, name)
	}
}

func (s *Server) workspaceFromChannel(name string) workspaceResolver {
	return func(c *gin.Context) (snowflake.ID, error) {
		channelID, err := paramID(c, name)
		if err != nil {
			return 0, err
		}
		channel, err := s.workspaces.GetChannel(c.Request.Context(), channelID)
		if err != nil {
			return 0, err
		}
		return channel.WorkspaceID, nil
	}
}

func (s *Server) workspaceFromWebhook(name string) workspaceResolver {
	return func(c *gin.Context) (snowflake.ID, error) {
		webhookID, err := paramID(c, name)
		if err != nil {
			return 0, err
		}
		hook, err := s.webhooks.Get(c.Request.Context(), webhookID)
		if err != nil {
			return 0, err
		}
		return hook.WorkspaceID, nil
	}
}

func resolvedWorkspace(c *gin.Context) (snowflake.ID, error) {
	value, ok := c.Get(contextWorkspaceIDKey)
	if !ok {
		return 0, ErrForbidden
	}
	id, ok := value.(snowflake.ID)
	if !ok || id == 0 {
		return 0, ErrForbidden
	}
	return id, nil
}
