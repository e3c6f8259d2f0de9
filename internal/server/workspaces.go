package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
)

type addChannelMemberRequest struct {
	UserID snowflake.ID `json:"userId"`
}

func (s *Server) CreateWorkspace(c *gin.Context) {
	principal, err := userFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req workspacedomain.CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ws, err := s.workspaces.CreateWorkspace(c.Request.Context(), principal.AuthorID(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": ws})
}

func (s *Server) GetWorkspace(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	workspaceID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	ws, err := s.workspaces.GetWorkspace(ctx, workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.gate.RequireWorkspace(ctx, principal, ws.ID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ws})
}

func (s *Server) DeleteWorkspace(c *gin.Context) {
	principal, err := userFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	workspaceID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.workspaces.DeleteWorkspace(c.Request.Context(), principal.AuthorID(), workspaceID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddWorkspaceMember(c *gin.Context) {
	workspaceID, err := resolvedWorkspace(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req workspacedomain.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.workspaces.AddMember(c.Request.Context(), workspaceID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": member})
}

func (s *Server) CreateDepartment(c *gin.Context) {
	workspaceID, err := resolvedWorkspace(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req workspacedomain.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	dept, err := s.workspaces.CreateDepartment(c.Request.Context(), workspaceID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": dept})
}

func (s *Server) CreateChannel(c *gin.Context) {
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

	var req workspacedomain.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	creatorID := principal.AuthorID()
	channel, err := s.workspaces.CreateChannel(c.Request.Context(), workspaceID, &creatorID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": channel})
}

// AddChannelMember requires the caller to see the channel, so private
// channels only grow through their existing members.
func (s *Server) AddChannelMember(c *gin.Context) {
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

	var req addChannelMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if _, err := s.gate.RequireChannel(ctx, principal, channelID); err != nil {
		AbortWithError(c, err)
		return
	}

	member, err := s.workspaces.AddChannelMember(ctx, channelID, req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": member})
}
