package api

import (
	"net/http"

	"escalafin-messaging/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// preferenceColumns are the JSON keys accepted by UpdatePreferences. They match the
// column names of the embedded preference struct.
var preferenceColumns = map[string]bool{
	"whatsapp_payment_received": true,
	"whatsapp_payment_reminder": true,
	"whatsapp_loan_approved":    true,
	"whatsapp_marketing":        true,
	"sms_payment_received":      true,
	"sms_payment_reminder":      true,
	"sms_loan_approved":         true,
	"sms_marketing":             true,
	"email_payment_received":    true,
	"email_payment_reminder":    true,
	"email_loan_approved":       true,
	"email_marketing":           true,
}

type ClientHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewClientHandler(db *gorm.DB, log *zap.Logger) *ClientHandler {
	return &ClientHandler{db: db, log: log}
}

func (h *ClientHandler) GetPreferences(c *gin.Context) {
	client, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, client.Preferences)
}

// UpdatePreferences sets only the flags present in the body, e.g.
// {"whatsapp_marketing": false}.
func (h *ClientHandler) UpdatePreferences(c *gin.Context) {
	client, ok := h.load(c)
	if !ok {
		return
	}

	var req map[string]bool
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no preferences provided"})
		return
	}
	updates := make(map[string]any, len(req))
	for key, value := range req {
		if !preferenceColumns[key] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown preference " + key})
			return
		}
		updates[key] = value
	}

	if err := h.db.WithContext(c.Request.Context()).Model(client).Updates(updates).Error; err != nil {
		respondError(c, h.log, err)
		return
	}
	if err := h.db.WithContext(c.Request.Context()).First(client, client.ID).Error; err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, client.Preferences)
}

func (h *ClientHandler) load(c *gin.Context) (*models.Client, bool) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, h.log, err)
		return nil, false
	}
	var client models.Client
	if err := h.db.WithContext(c.Request.Context()).First(&client, id).Error; err != nil {
		respondError(c, h.log, err)
		return nil, false
	}
	return &client, true
}
