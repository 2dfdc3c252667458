package api

import (
	"errors"
	"net/http"
	"strings"

	"escalafin-messaging/internal/models"
	"escalafin-messaging/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ConfigCache is invalidated whenever the provider configuration changes.
type ConfigCache interface {
	Invalidate()
}

type WhatsAppHandler struct {
	db      *gorm.DB
	gateway *whatsapp.Gateway
	cache   ConfigCache
	log     *zap.Logger
}

func NewWhatsAppHandler(db *gorm.DB, gateway *whatsapp.Gateway, cache ConfigCache, log *zap.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{db: db, gateway: gateway, cache: cache, log: log}
}

type configResponse struct {
	models.WahaConfig
	HasAPIKey bool `json:"has_api_key"`
}

// GetConfig returns the active provider configuration without its API key
func (h *WhatsAppHandler) GetConfig(c *gin.Context) {
	var row models.WahaConfig
	err := h.db.WithContext(c.Request.Context()).Where("is_active = ?", true).Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": whatsapp.ErrNotConfigured.Error()})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, configResponse{WahaConfig: row, HasAPIKey: row.APIKey != ""})
}

type UpdateConfigRequest struct {
	BaseURL   string  `json:"base_url" binding:"required,url"`
	SessionID string  `json:"session_id" binding:"required"`
	APIKey    *string `json:"api_key"`
}

// UpdateConfig stores a new active configuration and deactivates the previous one.
// Omitting api_key keeps the current key.
func (h *WhatsAppHandler) UpdateConfig(c *gin.Context) {
	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row := models.WahaConfig{
		BaseURL:   strings.TrimRight(strings.TrimSpace(req.BaseURL), "/"),
		SessionID: strings.TrimSpace(req.SessionID),
		IsActive:  true,
	}
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var current models.WahaConfig
		err := tx.Where("is_active = ?", true).Order("id DESC").First(&current).Error
		switch {
		case err == nil:
			row.APIKey = current.APIKey
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		if req.APIKey != nil {
			row.APIKey = strings.TrimSpace(*req.APIKey)
		}

		if err := tx.Model(&models.WahaConfig{}).Where("is_active = ?", true).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.cache.Invalidate()
	h.log.Info("whatsapp provider configuration updated", zap.Uint("config_id", row.ID), zap.String("session", row.SessionID))
	c.JSON(http.StatusOK, configResponse{WahaConfig: row, HasAPIKey: row.APIKey != ""})
}

type SendMediaRequest struct {
	ClientID uint   `json:"client_id" binding:"required"`
	MediaURL string `json:"media_url" binding:"required"`
	Caption  string `json:"caption"`
	FileName string `json:"file_name"`
	SentBy   *uint  `json:"sent_by"`
}

// SendMedia sends a document or image to a client as a staff message
func (h *WhatsAppHandler) SendMedia(c *gin.Context) {
	var req SendMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var client models.Client
	if err := h.db.WithContext(c.Request.Context()).First(&client, req.ClientID).Error; err != nil {
		respondError(c, h.log, err)
		return
	}

	msg, err := h.gateway.SendMedia(c.Request.Context(), whatsapp.MediaRequest{
		Recipient: whatsapp.Recipient{ClientID: client.ID, Phone: client.Phone},
		Refs:      whatsapp.Refs{SentBy: req.SentBy},
		MediaURL:  req.MediaURL,
		Caption:   req.Caption,
		FileName:  req.FileName,
		Category:  models.CategoryManual,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "message": msg})
		return
	}
	c.JSON(http.StatusCreated, msg)
}
