package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	messagedomain "github.com/larrybwosi/workspace-sub003/internal/message/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/db/pagination"
)

type sendMessageRequest struct {
	ChannelID   snowflake.ID                    `json:"channelId"`
	ThreadID    *snowflake.ID                   `json:"threadId"`
	ReplyToID   *snowflake.ID                   `json:"replyToId"`
	Content     string                          `json:"content"`
	MessageType string                          `json:"messageType"`
	Metadata    map[string]any                  `json:"metadata"`
	Attachments []messagedomain.AttachmentInput `json:"attachments"`
}

type listMessagesQuery struct {
	Cursor   string `form:"cursor"`
	Limit    int    `form:"limit"`
	ThreadID string `form:"thread_id"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

type startThreadRequest struct {
	Title string `json:"title"`
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// SendMessage serves both the session route and the token route; the
// principal decides authorship and source.
func (s *Server) SendMessage(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.messages.Send(c.Request.Context(), messagedomain.SendRequest{
		Principal:   principal,
		ChannelID:   req.ChannelID,
		ThreadID:    req.ThreadID,
		ReplyToID:   req.ReplyToID,
		Content:     req.Content,
		MessageType: req.MessageType,
		Metadata:    req.Metadata,
		Attachments: req.Attachments,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": view})
}

func (s *Server) ListChannelMessages(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	channelID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	threadID, err := parseOptionalSnowflakeID(query.ThreadID)
	if err != nil {
		AbortWithError(c, newValidationError("thread_id", "invalid_thread_id", "invalid thread_id"))
		return
	}

	page, err := s.messages.List(c.Request.Context(), principal, messagedomain.ListRequest{
		Pagination: pagination.Pagination{
			Cursor: strings.TrimSpace(query.Cursor),
			Limit:  query.Limit,
		},
		ChannelID: channelID,
		ThreadID:  threadID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": page.Messages, "page_info": page.PageInfo})
}

func (s *Server) EditMessage(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	messageID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.messages.Edit(c.Request.Context(), principal, messageID, req.Content)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) DeleteMessage(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	messageID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.messages.Delete(c.Request.Context(), principal, messageID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) StartThread(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	messageID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req startThreadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	thread, err := s.messages.StartThread(c.Request.Context(), principal, messageID, req.Title)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": thread})
}

func (s *Server) AddReaction(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	messageID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reaction, err := s.messages.AddReaction(c.Request.Context(), principal, messageID, req.Emoji)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": reaction})
}

func (s *Server) RemoveReaction(c *gin.Context) {
	principal, err := principalFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	messageID, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.messages.RemoveReaction(c.Request.Context(), principal, messageID, c.Param("emoji")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
