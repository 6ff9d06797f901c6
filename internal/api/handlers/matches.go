package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/middleware"
)

// loadParticipantMatch returns the match state if the caller holds a seat.
func loadParticipantMatch(c *gin.Context, gm *game.Manager) (*game.MatchState, bool) {
	st, err := gm.GetMatchState(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !st.Match.HasPlayer(middleware.UserID(c)) {
		respondError(c, game.ErrNotParticipant)
		return nil, false
	}
	return st, true
}

func GetMatchState(gm *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, ok := loadParticipantMatch(c, gm)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, newMatchView(st))
	}
}

// SubmitProgress merges the caller's snapshot and returns the merged match.
func SubmitProgress(gm *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var snap game.Snapshot
		if err := c.ShouldBindJSON(&snap); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		ctx := c.Request.Context()
		res, err := gm.SubmitProgress(ctx, c.Param("id"), middleware.UserID(c), snap)
		if err != nil {
			respondError(c, err)
			return
		}
		// re-read: the submission may have completed the match
		st, err := gm.GetMatchState(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"applied": res.Applied, "match": newMatchView(st)})
	}
}

func CompleteMatch(gm *game.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := loadParticipantMatch(c, gm); !ok {
			return
		}
		res, err := gm.CompleteIfReady(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
