package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/middleware"
	"github.com/playmatatu/duel/internal/ws"
)

// HandleMatchWebSocket streams the events of one match to a participant.
func HandleMatchWebSocket(gm *game.Manager, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := loadParticipantMatch(c, gm); !ok {
			return
		}
		if err := hub.Serve(c.Writer, c.Request, c.Param("id"), middleware.UserID(c)); err != nil {
			// the upgrader has already written the error response
			_ = c.Error(err)
		}
	}
}
