package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/features"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/roster"
	"github.com/your-org/presence/pkg/dto"
)

const maxImageSize = 10 << 20

// EmbedFunc extracts a face feature vector and its detection quality from image bytes.
type EmbedFunc func(imageData []byte) ([]float32, float32, error)

// ReferenceStore keeps enrollment images. Satisfied by storage.MinIOStore.
type ReferenceStore interface {
	PutReference(ctx context.Context, identityID string, data []byte) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// ImageFlagger marks roster members with an enrolled reference image.
type ImageFlagger interface {
	SetImageUploaded(ctx context.Context, name string, uploaded bool) error
}

type IdentityHandler struct {
	store  *features.Store
	embed  EmbedFunc
	images ReferenceStore
	roster ImageFlagger
}

func NewIdentityHandler(store *features.Store, embed EmbedFunc, images ReferenceStore, roster ImageFlagger) *IdentityHandler {
	return &IdentityHandler{store: store, embed: embed, images: images, roster: roster}
}

func (h *IdentityHandler) List(c *gin.Context) {
	all := h.store.All()
	resp := make([]dto.IdentityResponse, 0, len(all))
	for _, ident := range all {
		resp = append(resp, identityResponse(ident))
	}
	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: resp, Total: len(resp)})
}

// Enroll accepts a multipart image upload with a name field, extracts the
// face vector, and stores it. Re-enrolling a name replaces its vector.
func (h *IdentityHandler) Enroll(c *gin.Context) {
	if h.embed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face embedding not available"})
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}
	if len(imageData) > maxImageSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	vector, quality, err := h.embed(imageData)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	ident := models.Identity{ID: name, DisplayName: name, Vector: vector}
	previous, _ := h.store.Get(name)

	if h.images != nil {
		key, err := h.images.PutReference(ctx, name, imageData)
		if err != nil {
			slog.Warn("store reference image", "name", name, "error", err)
		} else {
			ident.ImageKey = key
		}
	}

	if err := h.store.Add(ctx, ident); err != nil {
		h.deleteImage(ctx, ident.ImageKey)
		respondError(c, err)
		return
	}
	if previous.ImageKey != ident.ImageKey {
		h.deleteImage(ctx, previous.ImageKey)
	}

	if h.roster != nil {
		if err := h.roster.SetImageUploaded(ctx, name, true); err != nil && !errors.Is(err, roster.ErrNotFound) {
			slog.Warn("flag reference image", "name", name, "error", err)
		}
	}

	stored, err := h.store.Get(name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.EnrollResponse{Identity: identityResponse(stored), Quality: quality})
}

func (h *IdentityHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	existing, getErr := h.store.Get(id)

	removed, err := h.store.Remove(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	if getErr == nil {
		h.deleteImage(ctx, existing.ImageKey)
	}
	if h.roster != nil {
		if err := h.roster.SetImageUploaded(ctx, id, false); err != nil && !errors.Is(err, roster.ErrNotFound) {
			slog.Warn("unflag reference image", "name", id, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func identityResponse(i models.Identity) dto.IdentityResponse {
	return dto.IdentityResponse{
		ID:          i.ID,
		Name:        i.DisplayName,
		Dim:         len(i.Vector),
		ImageKey:    i.ImageKey,
		CreatedAt:   i.CreatedAt.UTC().Format(time.RFC3339),
		ProcessedAt: i.ProcessedAt.UTC().Format(time.RFC3339),
	}
}

// deleteImage removes a reference image that no identity points to any more.
func (h *IdentityHandler) deleteImage(ctx context.Context, key string) {
	if key == "" || h.images == nil {
		return
	}
	if err := h.images.DeleteObject(ctx, key); err != nil {
		slog.Warn("delete reference image", "key", key, "error", err)
	}
}
