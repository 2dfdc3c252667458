package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"escalafin-messaging/internal/automation"
	"escalafin-messaging/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChatbotHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewChatbotHandler(db *gorm.DB, log *zap.Logger) *ChatbotHandler {
	return &ChatbotHandler{db: db, log: log}
}

type RuleRequest struct {
	Name        *string             `json:"name"`
	IsActive    *bool               `json:"is_active"`
	Priority    *int                `json:"priority"`
	TriggerType *models.TriggerType `json:"trigger_type"`
	Trigger     *string             `json:"trigger"`
	Conditions  json.RawMessage     `json:"conditions"`
	Actions     json.RawMessage     `json:"actions"`
	Response    *string             `json:"response"`
}

// apply copies the fields present in the request onto rule.
func (r RuleRequest) apply(rule *models.ChatbotRule) {
	if r.Name != nil {
		rule.Name = *r.Name
	}
	if r.IsActive != nil {
		rule.IsActive = *r.IsActive
	}
	if r.Priority != nil {
		rule.Priority = *r.Priority
	}
	if r.TriggerType != nil {
		rule.TriggerType = *r.TriggerType
	}
	if r.Trigger != nil {
		rule.Trigger = *r.Trigger
	}
	if len(r.Conditions) > 0 {
		rule.Conditions = datatypes.JSON(r.Conditions)
	}
	if len(r.Actions) > 0 {
		rule.Actions = datatypes.JSON(r.Actions)
	}
	if r.Response != nil {
		rule.Response = *r.Response
	}
}

// GetRules returns all rules in evaluation order
func (h *ChatbotHandler) GetRules(c *gin.Context) {
	var rules []models.ChatbotRule
	if err := h.db.WithContext(c.Request.Context()).Order("priority DESC, id ASC").Find(&rules).Error; err != nil {
		respondError(c, h.log, err)
		return
	}
	if rules == nil {
		rules = []models.ChatbotRule{}
	}
	c.JSON(http.StatusOK, rules)
}

// CreateRule stores a new rule. Rules are active unless is_active is false.
func (h *ChatbotHandler) CreateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := models.ChatbotRule{IsActive: true, TriggerType: models.TriggerKeyword}
	req.apply(&rule)
	if err := automation.ValidateRule(rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&rule).Error; err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule applies a partial update and revalidates the result
func (h *ChatbotHandler) UpdateRule(c *gin.Context) {
	rule, ok := h.load(c)
	if !ok {
		return
	}
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.apply(rule)
	if err := automation.ValidateRule(*rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Save(rule).Error; err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *ChatbotHandler) DeleteRule(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res := h.db.WithContext(c.Request.Context()).Delete(&models.ChatbotRule{}, id)
	if res.Error != nil {
		respondError(c, h.log, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted successfully"})
}

// ToggleRule flips is_active
func (h *ChatbotHandler) ToggleRule(c *gin.Context) {
	rule, ok := h.load(c)
	if !ok {
		return
	}
	rule.IsActive = !rule.IsActive
	if err := h.db.WithContext(c.Request.Context()).Model(rule).Update("is_active", rule.IsActive).Error; err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// GetLogs returns recent rule executions, newest first. ?rule_id= narrows to one rule.
func (h *ChatbotHandler) GetLogs(c *gin.Context) {
	limit, offset := page(c)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.RuleExecutionLog{})
	if raw := c.Query("rule_id"); raw != "" {
		ruleID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule_id"})
			return
		}
		query = query.Where("rule_id = ?", ruleID)
	}

	var logs []models.RuleExecutionLog
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		respondError(c, h.log, err)
		return
	}
	if logs == nil {
		logs = []models.RuleExecutionLog{}
	}
	c.JSON(http.StatusOK, logs)
}

type ruleStats struct {
	RuleID     uint  `json:"rule_id"`
	Executions int64 `json:"executions"`
	Successes  int64 `json:"successes"`
}

// GetAnalytics summarizes rules and their executions
func (h *ChatbotHandler) GetAnalytics(c *gin.Context) {
	var stats struct {
		TotalRules      int64       `json:"total_rules"`
		ActiveRules     int64       `json:"active_rules"`
		TotalExecutions int64       `json:"total_executions"`
		SuccessfulExecs int64       `json:"successful_executions"`
		FailedExecs     int64       `json:"failed_executions"`
		PerRule         []ruleStats `json:"per_rule"`
	}

	db := h.db.WithContext(c.Request.Context())
	queries := []*gorm.DB{
		db.Model(&models.ChatbotRule{}).Count(&stats.TotalRules),
		db.Model(&models.ChatbotRule{}).Where("is_active = ?", true).Count(&stats.ActiveRules),
		db.Model(&models.RuleExecutionLog{}).Count(&stats.TotalExecutions),
		db.Model(&models.RuleExecutionLog{}).Where("success = ?", true).Count(&stats.SuccessfulExecs),
		db.Model(&models.RuleExecutionLog{}).
			Select("rule_id, COUNT(*) AS executions, SUM(CASE WHEN success THEN 1 ELSE 0 END) AS successes").
			Group("rule_id").Order("executions DESC").
			Scan(&stats.PerRule),
	}
	for _, q := range queries {
		if q.Error != nil {
			respondError(c, h.log, q.Error)
			return
		}
	}
	stats.FailedExecs = stats.TotalExecutions - stats.SuccessfulExecs
	if stats.PerRule == nil {
		stats.PerRule = []ruleStats{}
	}

	c.JSON(http.StatusOK, stats)
}

func (h *ChatbotHandler) load(c *gin.Context) (*models.ChatbotRule, bool) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, h.log, err)
		return nil, false
	}
	var rule models.ChatbotRule
	if err := h.db.WithContext(c.Request.Context()).First(&rule, id).Error; err != nil {
		respondError(c, h.log, err)
		return nil, false
	}
	return &rule, true
}
