package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/store"
)

// AdminDeposit credits external money to a wallet.
func AdminDeposit(gm *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Amount      int64  `json:"amount" binding:"required"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
			return
		}

		ctx := c.Request.Context()
		userID := c.Param("user")
		err := gm.Store().WithinTx(ctx, func(tx store.Tx) error {
			return gm.Ledger().Deposit(ctx, tx, userID, req.Amount, req.Description)
		})
		if err != nil {
			respondError(c, err)
			return
		}
		balance, err := gm.Ledger().Balance(ctx, gm.Store(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
	}
}

// AdminCancelMatch cancels a match and refunds every stake taken for it.
func AdminCancelMatch(gm *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Reason string `json:"reason"`
		}
		// the body is optional
		_ = c.ShouldBindJSON(&req)
		if req.Reason == "" {
			req.Reason = "operator"
		}

		ctx := c.Request.Context()
		if _, err := gm.CancelMatch(ctx, c.Param("id"), req.Reason); err != nil {
			respondError(c, err)
			return
		}
		st, err := gm.GetMatchState(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, newMatchView(st))
	}
}
