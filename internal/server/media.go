package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stickervault/internal/catalog"
	"stickervault/internal/models"
	"stickervault/internal/storage"
)

func (s *Server) handleUpload(c *gin.Context) {
	const op = "server.handleUpload"

	file, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	if file.Size > s.cfg.Ingest.MaxBytes {
		s.writeError(c, op, models.Validationf("payload of %d bytes exceeds the %d byte limit", file.Size, s.cfg.Ingest.MaxBytes))
		return
	}
	src, err := file.Open()
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, s.cfg.Ingest.MaxBytes+1))
	if err != nil {
		s.writeError(c, op, err)
		return
	}

	allowNear, _ := strconv.ParseBool(c.PostForm("allow_near_duplicate"))
	res, err := s.ingester.Ingest(c.Request.Context(), models.IngestRequest{
		Data:               data,
		ClaimedMime:        file.Header.Get("Content-Type"),
		ChatID:             c.PostForm("chat_id"),
		GroupID:            c.PostForm("group_id"),
		SenderID:           c.PostForm("sender_id"),
		Caption:            c.PostForm("caption"),
		AllowNearDuplicate: allowNear,
		Source:             "http",
	})
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleListMedia(c *gin.Context) {
	const op = "server.handleListMedia"

	q := storage.MediaQuery{
		Tag:      c.Query("tag"),
		SenderID: c.Query("sender_id"),
		Page:     pageFromQuery(c),
	}
	if raw := c.Query("nsfw"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.badRequest(c, op, err)
			return
		}
		q.NSFW = &v
	}

	items, total, err := s.db.ListMedia(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if items == nil {
		items = []models.MediaView{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "limit": q.Page.Limit, "offset": q.Page.Offset})
}

func (s *Server) handleGetMedia(c *gin.Context) {
	const op = "server.handleGetMedia"
	id, err := parseMediaID(c, "id")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	view, err := s.db.GetMediaView(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleGetFile(c *gin.Context) {
	const op = "server.handleGetFile"
	id, err := parseMediaID(c, "id")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	m, err := s.db.GetMedia(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	body, contentType, err := s.blobs.Get(c.Request.Context(), m.FilePath)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	defer body.Close()
	if m.Mimetype != "" {
		contentType = m.Mimetype
	}
	c.DataFromReader(http.StatusOK, m.FileSize, contentType, body, nil)
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSetDescription(c *gin.Context) {
	const op = "server.handleSetDescription"
	s.updateText(c, op, s.db.UpdateDescription)
}

func (s *Server) handleSetExtractedText(c *gin.Context) {
	const op = "server.handleSetExtractedText"
	s.updateText(c, op, s.db.RecordExtractedText)
}

func (s *Server) updateText(c *gin.Context, op string, update func(ctx context.Context, id uuid.UUID, text string) error) {
	id, err := parseMediaID(c, "id")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, op, err)
		return
	}
	if err := update(c.Request.Context(), id, req.Text); err != nil {
		s.writeError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSetNSFW(c *gin.Context) {
	const op = "server.handleSetNSFW"
	id, err := parseMediaID(c, "id")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	var req struct {
		NSFW *bool `json:"nsfw"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.NSFW == nil {
		s.badRequest(c, op, errors.New("nsfw flag is required"))
		return
	}
	if err := s.db.SetNSFW(c.Request.Context(), id, *req.NSFW); err != nil {
		s.writeError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type tagsRequest struct {
	Tags string `json:"tags"`
}

func (s *Server) handleTag(c *gin.Context) {
	const op = "server.handleTag"
	id, err := parseMediaID(c, "id")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	var req tagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, op, err)
		return
	}
	added, err := s.db.TagMedia(c.Request.Context(), id, []string{req.Tags})
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	s.respondTags(c, op, id, gin.H{"added": added})
}

func (s *Server) handleUntag(c *gin.Context) {
	const op = "server.handleUntag"
	id, err := parseMediaID(c, "id")
	if err != nil {
		s.badRequest(c, op, err)
		return
	}
	var req tagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, op, err)
		return
	}
	removed, err := s.db.UntagMedia(c.Request.Context(), id, []string{req.Tags})
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	s.respondTags(c, op, id, gin.H{"removed": removed})
}

func (s *Server) respondTags(c *gin.Context, op string, id uuid.UUID, body gin.H) {
	current, err := s.db.MediaTags(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	body["tags"] = current
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRandom(c *gin.Context) {
	const op = "server.handleRandom"
	includeNSFW, _ := strconv.ParseBool(c.Query("nsfw"))
	m, err := catalog.PickRandom(c.Request.Context(), s.db, includeNSFW)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleTopTags(c *gin.Context) {
	const op = "server.handleTopTags"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	tags, err := s.db.TopTags(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (s *Server) handleProcessingStats(c *gin.Context) {
	const op = "server.handleProcessingStats"
	window := 24 * 60 * 60
	if raw := c.Query("window_seconds"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			s.badRequest(c, op, fmt.Errorf("invalid window_seconds %q", raw))
			return
		}
		window = v
	}
	since := time.Now().Add(-time.Duration(window) * time.Second)
	stats, err := s.db.ProcessingStats(c.Request.Context(), since)
	if err != nil {
		s.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "stats": stats})
}
