package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/middleware"
)

// JoinQueue pairs the caller or queues them.
func JoinQueue(gm *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req game.JoinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.UserID = middleware.UserID(c)

		res, err := gm.Join(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}

		status := http.StatusOK
		if res.Outcome == game.Queued {
			status = http.StatusAccepted
		}
		c.JSON(status, res)
	}
}

// GetQueueEntry lets a queued client poll for its match.
func GetQueueEntry(gm *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := gm.GetQueueEntry(c.Request.Context(), c.Param("id"), middleware.UserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, newQueueEntryView(e))
	}
}

func CancelQueueEntry(gm *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gm.Cancel(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	}
}
