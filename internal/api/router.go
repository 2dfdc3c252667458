package api

import (
	"net/http"

	"escalafin-messaging/internal/conversation"
	"escalafin-messaging/internal/notification"
	"escalafin-messaging/internal/scheduler"
	"escalafin-messaging/internal/webhook"
	"escalafin-messaging/internal/whatsapp"
	"escalafin-messaging/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the components the HTTP surface is built from.
type Deps struct {
	DB         *gorm.DB
	Store      *conversation.Store
	Gateway    *whatsapp.Gateway
	Cache      ConfigCache
	Dispatcher *notification.Dispatcher
	Queue      *scheduler.Queue
	Sweeper    *scheduler.Sweeper
	Webhook    *webhook.Handler
	Hub        *ws.Hub
}

// NewRouter wires every route onto a gin engine.
func NewRouter(d Deps, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger.Named("http")))
	r.Use(CORS())

	apiLog := logger.Named("api")
	conversations := NewConversationHandler(d.Store, d.Gateway, apiLog)
	chatbot := NewChatbotHandler(d.DB, apiLog)
	wa := NewWhatsAppHandler(d.DB, d.Gateway, d.Cache, apiLog)
	notifications := NewNotificationHandler(d.Dispatcher, apiLog)
	clients := NewClientHandler(d.DB, apiLog)
	schedule := NewScheduleHandler(d.Queue, d.Sweeper, apiLog)

	r.GET("/healthz", healthz(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			d.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	r.POST("/webhook/whatsapp", d.Webhook.HandleMessage)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/conversations", conversations.ListConversations)
		apiGroup.GET("/conversations/:id", conversations.GetConversation)
		apiGroup.GET("/conversations/:id/messages", conversations.GetMessages)
		apiGroup.POST("/conversations/:id/messages", conversations.Reply)
		apiGroup.GET("/conversations/:id/export", conversations.ExportMessages)
		apiGroup.POST("/conversations/:id/close", conversations.Close)
		apiGroup.POST("/conversations/:id/assign", conversations.Assign)

		apiGroup.GET("/chatbot/rules", chatbot.GetRules)
		apiGroup.POST("/chatbot/rules", chatbot.CreateRule)
		apiGroup.PUT("/chatbot/rules/:id", chatbot.UpdateRule)
		apiGroup.DELETE("/chatbot/rules/:id", chatbot.DeleteRule)
		apiGroup.POST("/chatbot/rules/:id/toggle", chatbot.ToggleRule)
		apiGroup.GET("/chatbot/logs", chatbot.GetLogs)
		apiGroup.GET("/chatbot/analytics", chatbot.GetAnalytics)

		whatsappGroup := apiGroup.Group("/whatsapp")
		{
			whatsappGroup.GET("/config", wa.GetConfig)
			whatsappGroup.PUT("/config", wa.UpdateConfig)
			whatsappGroup.POST("/send-media", wa.SendMedia)
		}

		notificationGroup := apiGroup.Group("/notifications")
		{
			notificationGroup.POST("/payment-received", notifications.PaymentReceived)
			notificationGroup.POST("/payment-reminder", notifications.PaymentReminder)
			notificationGroup.POST("/loan-approved", notifications.LoanApproved)
			notificationGroup.POST("/custom", notifications.Custom)
			notificationGroup.POST("/broadcast", notifications.Broadcast)
		}

		apiGroup.GET("/clients/:id/preferences", clients.GetPreferences)
		apiGroup.PUT("/clients/:id/preferences", clients.UpdatePreferences)

		apiGroup.GET("/scheduled-messages", schedule.List)
		apiGroup.POST("/scheduled-messages", schedule.Create)
		apiGroup.POST("/scheduled-messages/:id/cancel", schedule.Cancel)
		apiGroup.POST("/sweep", schedule.Sweep)

		apiGroup.POST("/loans/calculate", CalculateLoan)
	}

	logger.Info("router initialized")
	return r
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
