package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apitokendomain "github.com/larrybwosi/workspace-sub003/internal/apitoken/domain"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
)

func (s *Server) CreateWorkspaceToken(c *gin.Context) {
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

	var req apitokendomain.CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	secret, err := s.tokens.CreateToken(c.Request.Context(), principal.AuthorID(), workspaceID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": secret})
}

func (s *Server) ListWorkspaceTokens(c *gin.Context) {
	workspaceID, err := resolvedWorkspace(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tokens, err := s.tokens.ListTokens(c.Request.Context(), workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tokens})
}

func (s *Server) RevokeWorkspaceToken(c *gin.Context) {
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
	tokenID, err := paramID(c, "tokenId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.tokens.RevokeToken(c.Request.Context(), principal.AuthorID(), workspaceID, tokenID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CreatePersonalKey is session only; a personal key cannot mint another.
func (s *Server) CreatePersonalKey(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if principal.Kind != gatewaydomain.KindUser {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req apitokendomain.CreatePersonalKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	secret, err := s.tokens.CreatePersonalKey(c.Request.Context(), principal.AuthorID(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": secret})
}

func (s *Server) RevokePersonalKey(c *gin.Context) {
	principal, err := userFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	keyID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.tokens.RevokePersonalKey(c.Request.Context(), principal.AuthorID(), keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
