package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stickervault/internal/models"
)

type voteRequest struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
}

func (s *Server) handleVote(c *gin.Context) {
	const op = "server.handleVote"
	id, err := parseMediaID(c, "id")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, op, err)
		return
	}
	res, err := s.voter.Vote(c.Request.Context(), id, req.UserID, req.GroupID)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	status := http.StatusOK
	if res.Inserted {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (s *Server) handleGetVotes(c *gin.Context) {
	const op = "server.handleGetVotes"
	id, err := parseMediaID(c, "id")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := s.db.GetMedia(ctx, id); err != nil {
		s.writeError(c, op, err)
		return
	}
	tally, eligible, err := s.voter.Tally(ctx, id, c.Query("group_id"))
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	votes, err := s.db.Votes(ctx, id)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if votes == nil {
		votes = []models.DeleteRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"tally": tally, "quorum": s.voter.Quorum(), "eligible": eligible, "votes": votes})
}

func (s *Server) handleDismissVotes(c *gin.Context) {
	const op = "server.handleDismissVotes"
	id, err := parseMediaID(c, "id")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	n, err := s.voter.Dismiss(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dismissed": n})
}

func (s *Server) handlePending(c *gin.Context) {
	const op = "server.handlePending"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	pending, err := s.db.PendingDeleteRequests(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if pending == nil {
		pending = []models.PendingDeletion{}
	}
	c.JSON(http.StatusOK, gin.H{"items": pending, "quorum": s.voter.Quorum()})
}
