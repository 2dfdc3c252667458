package automation

import (
	"context"
	"errors"
	"testing"

	"escalafin-messaging/internal/conversation"
	"escalafin-messaging/internal/database/dbtest"
	"escalafin-messaging/internal/models"
	"escalafin-messaging/internal/templating"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	engine *Engine
	store  *conversation.Store
	client models.Client
	conv   *models.Conversation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	advisor := uint(77)
	client := models.Client{FirstName: "Ana", LastName: "Soto", Phone: "4421234567", AdvisorID: &advisor}
	require.NoError(t, db.Create(&client).Error)

	store := conversation.NewStore(db, nil)
	conv, err := store.EnsureActive(context.Background(), client.ID, client.Phone)
	require.NoError(t, err)

	return &fixture{
		db:     db,
		engine: NewEngine(db, templating.NewRenderer(db), store, nil),
		store:  store,
		client: client,
		conv:   conv,
	}
}

func (f *fixture) rule(t *testing.T, r models.ChatbotRule) models.ChatbotRule {
	t.Helper()
	if r.TriggerType == "" {
		r.TriggerType = models.TriggerKeyword
	}
	if r.Name == "" {
		r.Name = r.Trigger
	}
	require.NoError(t, f.db.Create(&r).Error)
	return r
}

func (f *fixture) input(text string) MatchInput {
	return MatchInput{ClientID: f.client.ID, ConversationID: f.conv.ID, Text: text}
}

func TestMatchKeywordRule(t *testing.T) {
	f := newFixture(t)
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 10, Trigger: "hola,buenas", Response: "¡Hola {nombre}!"})

	reply, ok := f.engine.Match(context.Background(), f.input("hola"))
	require.True(t, ok)
	assert.Equal(t, "¡Hola Ana!", reply)

	var logs []models.RuleExecutionLog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, "hola", logs[0].InboundText)
}

func TestMatchHonoursPriorityAndFirstMatchWins(t *testing.T) {
	f := newFixture(t)
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 1, Trigger: "pago", Response: "baja"})
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 50, Trigger: "pago", Response: "alta"})
	f.rule(t, models.ChatbotRule{IsActive: false, Priority: 99, Trigger: "pago", Response: "inactiva"})

	reply, ok := f.engine.Match(context.Background(), f.input("quiero hacer un pago"))
	require.True(t, ok)
	assert.Equal(t, "alta", reply)

	var count int64
	require.NoError(t, f.db.Model(&models.RuleExecutionLog{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestMatchFailedConditionFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 20, Trigger: "saldo",
		Conditions: datatypes.JSON(`{"hasActiveLoans": true}`), Response: "Tu saldo es {saldo}"})
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 10, Trigger: "saldo", Response: "No tienes préstamos activos"})

	reply, ok := f.engine.Match(context.Background(), f.input("saldo"))
	require.True(t, ok)
	assert.Equal(t, "No tienes préstamos activos", reply)

	require.NoError(t, f.db.Create(&models.Loan{ClientID: f.client.ID, LoanNumber: "L1", Status: models.LoanActive, Balance: 1500}).Error)
	reply, ok = f.engine.Match(context.Background(), f.input("saldo"))
	require.True(t, ok)
	assert.Equal(t, "Tu saldo es $1,500.00", reply)
}

func TestMatchConditionOnlyRuleReturnsNoMatch(t *testing.T) {
	f := newFixture(t)
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 20, Trigger: "saldo",
		Conditions: datatypes.JSON(`{"hasActiveLoans": true, "futureKey": 1}`), Response: "x"})

	_, ok := f.engine.Match(context.Background(), f.input("saldo"))
	assert.False(t, ok)
}

func TestMatchBadRegexIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 30, TriggerType: models.TriggerRegex, Trigger: "([", Response: "roto"})
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 10, TriggerType: models.TriggerRegex, Trigger: `horario`, Response: "9 a 18 h"})

	reply, ok := f.engine.Match(context.Background(), f.input("¿Cuál es el HORARIO?"))
	require.True(t, ok)
	assert.Equal(t, "9 a 18 h", reply)
}

func TestMatchMalformedConditionsRecordedAndSkipped(t *testing.T) {
	f := newFixture(t)
	bad := f.rule(t, models.ChatbotRule{IsActive: true, Priority: 30, Trigger: "hola",
		Conditions: datatypes.JSON(`{"hasActiveLoans": "si"}`), Response: "x"})

	_, ok := f.engine.Match(context.Background(), f.input("hola"))
	assert.False(t, ok)

	var entry models.RuleExecutionLog
	require.NoError(t, f.db.Where("rule_id = ?", bad.ID).First(&entry).Error)
	assert.False(t, entry.Success)
	assert.Contains(t, entry.ErrorMessage, "conditions")
}

func TestMatchRunsActions(t *testing.T) {
	f := newFixture(t)
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 5, Trigger: "asesor",
		Actions:  datatypes.JSON(`{"assignToAdvisor": true, "createNotification": {"title": "Solicitud de asesor"}, "unknown": 1}`),
		Response: "Te comunico con tu asesor"})

	reply, ok := f.engine.Match(context.Background(), f.input("quiero un asesor"))
	require.True(t, ok)
	assert.Equal(t, "Te comunico con tu asesor", reply)

	conv, err := f.store.Get(context.Background(), f.conv.ID)
	require.NoError(t, err)
	require.NotNil(t, conv.AssignedToID)
	assert.EqualValues(t, 77, *conv.AssignedToID)

	var notes []models.Notification
	require.NoError(t, f.db.Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.EqualValues(t, 77, notes[0].UserID)
	assert.Equal(t, "Solicitud de asesor", notes[0].Title)
	assert.Equal(t, "quiero un asesor", notes[0].Body)
}

func TestMatchActionsWithoutAdvisorAreNoops(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&f.client).Update("advisor_id", nil).Error)
	f.rule(t, models.ChatbotRule{IsActive: true, Trigger: "asesor",
		Actions: datatypes.JSON(`{"assignToAdvisor": true, "createNotification": true}`), Response: "ok"})

	reply, ok := f.engine.Match(context.Background(), f.input("asesor"))
	require.True(t, ok)
	assert.Equal(t, "ok", reply)

	conv, err := f.store.Get(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.Nil(t, conv.AssignedToID)
}

func TestMatchNoRules(t *testing.T) {
	f := newFixture(t)
	reply, ok := f.engine.Match(context.Background(), f.input("hola"))
	assert.False(t, ok)
	assert.Empty(t, reply)
}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, string, uint) (string, error) {
	return "", errors.New("render broke")
}

// selectiveRenderer fails only for one template and echoes every other one.
type selectiveRenderer struct{ broken string }

func (r selectiveRenderer) Render(_ context.Context, template string, _ uint) (string, error) {
	if template == r.broken {
		return "", errors.New("render broke")
	}
	return template, nil
}

func TestMatchRenderFailureTriesNextRule(t *testing.T) {
	f := newFixture(t)
	f.rule(t, models.ChatbotRule{IsActive: true, Trigger: "hola", Response: "x"})
	engine := NewEngine(f.db, failingRenderer{}, f.store, nil)

	_, ok := engine.Match(context.Background(), f.input("hola"))
	assert.False(t, ok)

	var entry models.RuleExecutionLog
	require.NoError(t, f.db.First(&entry).Error)
	assert.False(t, entry.Success)
	assert.Contains(t, entry.ErrorMessage, "render broke")
}

func TestMatchRenderFailureRunsNoActions(t *testing.T) {
	f := newFixture(t)
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 10, Trigger: "hola", Response: "high",
		Actions: datatypes.JSON(`{"createNotification": {"title": "alta"}}`)})
	f.rule(t, models.ChatbotRule{IsActive: true, Priority: 1, Trigger: "hola", Response: "low",
		Actions: datatypes.JSON(`{"createNotification": {"title": "baja"}}`)})
	engine := NewEngine(f.db, selectiveRenderer{broken: "high"}, f.store, nil)

	reply, ok := engine.Match(context.Background(), f.input("hola"))
	require.True(t, ok)
	assert.Equal(t, "low", reply)

	var notifications []models.Notification
	require.NoError(t, f.db.Find(&notifications).Error)
	require.Len(t, notifications, 1)
	assert.Equal(t, "baja", notifications[0].Title)
}

func TestRuleErrorUnwraps(t *testing.T) {
	inner := errors.New("inner")
	err := error(&RuleError{RuleID: 3, Stage: "trigger", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "rule 3 trigger: inner", err.Error())
}
