package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stickervault/internal/models"
)

type createPackRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	MaxStickers int    `json:"max_stickers"`
}

func (s *Server) handleCreatePack(c *gin.Context) {
	const op = "server.handleCreatePack"
	var req createPackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, op, err)
		return
	}
	p, err := s.curator.CreatePack(c.Request.Context(), req.Name, req.Description, req.CreatedBy, req.MaxStickers)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleListPacks(c *gin.Context) {
	const op = "server.handleListPacks"
	page := pageFromQuery(c)
	packs, total, err := s.db.ListPacks(c.Request.Context(), c.Query("search"), page)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if packs == nil {
		packs = []models.StickerPack{}
	}
	c.JSON(http.StatusOK, gin.H{"items": packs, "total": total, "limit": page.Limit, "offset": page.Offset})
}

func (s *Server) handleGetPack(c *gin.Context) {
	const op = "server.handleGetPack"
	id, err := parsePackID(c)
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	p, err := s.db.GetPack(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	stickers, err := s.db.PackStickers(c.Request.Context(), id, pageFromQuery(c))
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if stickers == nil {
		stickers = []models.PackSticker{}
	}
	c.JSON(http.StatusOK, gin.H{"pack": p, "stickers": stickers})
}

func (s *Server) handleDeletePack(c *gin.Context) {
	const op = "server.handleDeletePack"
	id, err := parsePackID(c)
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	if err := s.curator.DeletePack(c.Request.Context(), id); err != nil {
		s.writeError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type stickerRequest struct {
	MediaID   string `json:"media_id"`
	CreatedBy string `json:"created_by"`
}

func (r stickerRequest) mediaID() (uuid.UUID, error) {
	return uuid.Parse(r.MediaID)
}

func (s *Server) handleAddSticker(c *gin.Context) {
	const op = "server.handleAddSticker"
	packID, err := parsePackID(c)
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	var req stickerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, op, err)
		return
	}
	mediaID, err := req.mediaID()
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	pos, err := s.curator.AddToPack(c.Request.Context(), packID, mediaID)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"pack_id": packID, "media_id": mediaID, "position": pos})
}

func (s *Server) handleRemoveSticker(c *gin.Context) {
	const op = "server.handleRemoveSticker"
	packID, err := parsePackID(c)
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	mediaID, err := parseMediaID(c, "media_id")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	if err := s.curator.RemoveFromPack(c.Request.Context(), packID, mediaID); err != nil {
		s.writeError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAddToSeries(c *gin.Context) {
	const op = "server.handleAddToSeries"
	var req stickerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, op, err)
		return
	}
	mediaID, err := req.mediaID()
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	placement, err := s.curator.AddToNamedPack(c.Request.Context(), c.Param("name"), mediaID, req.CreatedBy)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, placement)
}

func (s *Server) handleSuggestPackName(c *gin.Context) {
	const op = "server.handleSuggestPackName"
	name, err := s.curator.SuggestPackName(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name})
}
