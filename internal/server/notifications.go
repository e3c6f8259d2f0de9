package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type listNotificationsQuery struct {
	Limit int `form:"limit"`
}

func (s *Server) ListNotifications(c *gin.Context) {
	principal, err := userFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query listNotificationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items, err := s.notifications.ListUnread(c.Request.Context(), principal.AuthorID(), query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	principal, err := userFrom(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	id, err := paramID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.notifications.MarkRead(c.Request.Context(), principal.AuthorID(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
