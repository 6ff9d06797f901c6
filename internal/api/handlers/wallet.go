package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/middleware"
)

func GetWallet(gm *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		balance, err := gm.Ledger().Balance(c.Request.Context(), gm.Store(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
	}
}
