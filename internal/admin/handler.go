package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ytgate/internal/db"
	"ytgate/internal/directory"
	"ytgate/internal/keyservice"
	"ytgate/internal/model"
)

// Handler exposes the key lifecycle operations consumed by the chat console
// front-end: genkey, assignkey, listkeys, delkey and the owner-keys lookup
// behind getuserkeys/mykey.
type Handler struct {
	keys     *keyservice.Service
	resolver directory.Resolver
}

// NewHandler creates an admin handler.
func NewHandler(keys *keyservice.Service, resolver directory.Resolver) *Handler {
	return &Handler{keys: keys, resolver: resolver}
}

type generateRequest struct {
	Limit int `json:"limit" binding:"required"`
	Days  int `json:"days" binding:"required"`
}

type assignRequest struct {
	OwnerRef string `json:"owner_ref" binding:"required"`
	Limit    int    `json:"limit" binding:"required"`
	Days     int    `json:"days" binding:"required"`
}

type keyView struct {
	Key        string `json:"key"`
	OwnerID    *int64 `json:"owner_id,omitempty"`
	DailyLimit int    `json:"daily_limit"`
	UsedToday  int    `json:"used_today"`
	ExpiresAt  string `json:"expires_at"`
	CreatedAt  string `json:"created_at"`
	Active     bool   `json:"active"`
}

func viewOf(k *model.APIKey) keyView {
	return keyView{
		Key:        k.Key,
		OwnerID:    k.OwnerID,
		DailyLimit: k.DailyLimit,
		UsedToday:  k.UsedToday,
		ExpiresAt:  k.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt:  k.CreatedAt.UTC().Format(time.RFC3339),
		Active:     k.Active,
	}
}

func viewsOf(keys []model.APIKey) []keyView {
	views := make([]keyView, len(keys))
	for i := range keys {
		views[i] = viewOf(&keys[i])
	}
	return views
}

func isValidationError(err error) bool {
	return errors.Is(err, keyservice.ErrInvalidLimit) || errors.Is(err, keyservice.ErrInvalidTTL)
}

// GenerateKeyHandler implements the genkey console command.
func (h *Handler) GenerateKeyHandler(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Usage: genkey <limit> <days>"})
		return
	}

	apiKey, err := h.keys.Generate(req.Limit, req.Days)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate key"})
		return
	}
	c.JSON(http.StatusCreated, viewOf(apiKey))
}

// AssignKeyHandler implements the assignkey console command. The owner
// reference is resolved through the directory first; a resolution failure
// aborts the operation before any key is issued.
func (h *Handler) AssignKeyHandler(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Usage: assignkey <owner> <limit> <days>"})
		return
	}

	ownerID, err := h.resolver.Resolve(c.Request.Context(), req.OwnerRef)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	result, err := h.keys.Assign(c.Request.Context(), ownerID, req.Limit, req.Days)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign key"})
		return
	}

	resp := gin.H{"key": viewOf(result.Key)}
	if result.ReplacedKey != "" {
		resp["replaced_key"] = result.ReplacedKey
	}
	if result.NotifyWarning != "" {
		resp["warning"] = result.NotifyWarning
	}
	c.JSON(http.StatusCreated, resp)
}

// ListKeysHandler implements the listkeys console command. The console chunks
// long replies itself; this endpoint only exposes offset pagination.
func (h *Handler) ListKeysHandler(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	keys, total, err := h.keys.ListPage((page-1)*pageSize, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list keys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"keys":      viewsOf(keys),
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// DeleteKeyHandler implements the delkey console command. Revoking an unknown
// or already-revoked key reports not-found, not success.
func (h *Handler) DeleteKeyHandler(c *gin.Context) {
	key := c.Param("key")
	if err := h.keys.Revoke(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key deleted"})
}

// OwnerKeysHandler backs both the getuserkeys and mykey console commands:
// resolve the reference, then report the owner's keys as stored.
func (h *Handler) OwnerKeysHandler(c *gin.Context) {
	ownerID, err := h.resolver.Resolve(c.Request.Context(), c.Param("ref"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	keys, err := h.keys.ListByOwner(ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list owner keys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner_id": ownerID, "keys": viewsOf(keys)})
}
