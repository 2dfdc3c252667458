// Package automation matches inbound text against chatbot rules.
package automation

import (
	"context"
	"errors"
	"fmt"

	"escalafin-messaging/internal/models"
	"escalafin-messaging/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RuleError describes why a single rule could not be evaluated. It never escapes Match.
type RuleError struct {
	RuleID uint
	Stage  string
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %d %s: %v", e.RuleID, e.Stage, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// Renderer fills response placeholders.
type Renderer interface {
	Render(ctx context.Context, template string, clientID uint) (string, error)
}

// Assigner sets the staff owner of a conversation.
type Assigner interface {
	Assign(ctx context.Context, conversationID, userID uint) (*models.Conversation, error)
}

// MatchInput is an inbound message to evaluate.
type MatchInput struct {
	ClientID       uint
	ConversationID uint
	Text           string
}

// Engine evaluates active rules by descending priority; the first fully
// satisfied rule wins.
type Engine struct {
	db       *gorm.DB
	renderer Renderer
	assigner Assigner
	log      *zap.Logger
}

func NewEngine(db *gorm.DB, renderer Renderer, assigner Assigner, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, renderer: renderer, assigner: assigner, log: log.Named("chatbot")}
}

// Match returns the rendered response of the first matching rule, or false.
func (e *Engine) Match(ctx context.Context, in MatchInput) (string, bool) {
	var rules []models.ChatbotRule
	if err := e.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority DESC").Order("id ASC").
		Find(&rules).Error; err != nil {
		e.log.Error("load chatbot rules", zap.Error(err))
		return "", false
	}

	for _, rule := range rules {
		reply, ok, err := e.evaluate(ctx, rule, in)
		if err != nil {
			e.log.Warn("chatbot rule skipped", zap.Uint("rule_id", rule.ID), zap.String("rule", rule.Name), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		metrics.RuleMatchesTotal.WithLabelValues(string(rule.TriggerType)).Inc()
		e.log.Info("chatbot rule matched",
			zap.Uint("rule_id", rule.ID),
			zap.String("rule", rule.Name),
			zap.Uint("client_id", in.ClientID),
		)
		return reply, true
	}
	return "", false
}

func (e *Engine) evaluate(ctx context.Context, rule models.ChatbotRule, in MatchInput) (string, bool, error) {
	matched, err := TriggerMatches(rule, in.Text)
	if err != nil {
		return "", false, &RuleError{RuleID: rule.ID, Stage: "trigger", Err: err}
	}
	if !matched {
		return "", false, nil
	}

	// from here on the trigger fired, so failures are recorded against the rule
	fail := func(stage string, err error) (string, bool, error) {
		rerr := &RuleError{RuleID: rule.ID, Stage: stage, Err: err}
		e.recordExecution(ctx, rule.ID, in, rerr)
		return "", false, rerr
	}

	conditions, err := ParseConditions(rule.Conditions)
	if err != nil {
		return fail("conditions", err)
	}
	ok, err := e.conditionsHold(ctx, conditions, in.ClientID)
	if err != nil {
		return fail("conditions", err)
	}
	if !ok {
		return "", false, nil
	}

	actions, err := ParseActions(rule.Actions)
	if err != nil {
		return fail("actions", err)
	}
	// a rule whose render fails must leave no side effects
	reply, err := e.renderer.Render(ctx, rule.Response, in.ClientID)
	if err != nil {
		return fail("render", err)
	}
	for _, action := range actions {
		if err := e.execute(ctx, action, rule, in); err != nil {
			e.log.Warn("chatbot action failed",
				zap.Uint("rule_id", rule.ID),
				zap.String("action", action.actionKey()),
				zap.Error(err),
			)
		}
	}

	e.recordExecution(ctx, rule.ID, in, nil)
	return reply, true, nil
}

func (e *Engine) conditionsHold(ctx context.Context, conditions []Condition, clientID uint) (bool, error) {
	for _, c := range conditions {
		switch cond := c.(type) {
		case HasActiveLoans:
			var count int64
			if err := e.db.WithContext(ctx).Model(&models.Loan{}).
				Where("client_id = ? AND status = ?", clientID, models.LoanActive).
				Count(&count).Error; err != nil {
				return false, err
			}
			if (count > 0) != cond.Want {
				return false, nil
			}
		case UnknownCondition:
			e.log.Debug("ignoring unknown rule condition", zap.String("key", cond.Key))
		}
	}
	return true, nil
}

func (e *Engine) execute(ctx context.Context, action Action, rule models.ChatbotRule, in MatchInput) error {
	switch a := action.(type) {
	case AssignToAdvisor:
		advisorID, err := e.advisorOf(ctx, in.ClientID)
		if err != nil || advisorID == nil {
			return err
		}
		if in.ConversationID == 0 || e.assigner == nil {
			return nil
		}
		_, err = e.assigner.Assign(ctx, in.ConversationID, *advisorID)
		return err

	case CreateNotification:
		advisorID, err := e.advisorOf(ctx, in.ClientID)
		if err != nil || advisorID == nil {
			return err
		}
		title := a.Title
		if title == "" {
			title = "Regla de chatbot activada: " + rule.Name
		}
		body := a.Body
		if body == "" {
			body = in.Text
		}
		return e.db.WithContext(ctx).Create(&models.Notification{
			UserID:   *advisorID,
			ClientID: in.ClientID,
			Title:    title,
			Body:     body,
		}).Error

	case UnknownAction:
		e.log.Debug("ignoring unknown rule action", zap.String("key", a.Key))
	}
	return nil
}

func (e *Engine) advisorOf(ctx context.Context, clientID uint) (*uint, error) {
	var client models.Client
	if err := e.db.WithContext(ctx).Select("id", "advisor_id").First(&client, clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("client %d not found", clientID)
		}
		return nil, err
	}
	return client.AdvisorID, nil
}

func (e *Engine) recordExecution(ctx context.Context, ruleID uint, in MatchInput, ruleErr error) {
	entry := models.RuleExecutionLog{
		RuleID:         ruleID,
		ClientID:       in.ClientID,
		ConversationID: in.ConversationID,
		InboundText:    in.Text,
		Success:        ruleErr == nil,
	}
	if ruleErr != nil {
		entry.ErrorMessage = ruleErr.Error()
	}
	if err := e.db.WithContext(ctx).Create(&entry).Error; err != nil {
		e.log.Error("record rule execution", zap.Uint("rule_id", ruleID), zap.Error(err))
	}
}
