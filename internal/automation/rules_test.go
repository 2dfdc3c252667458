package automation

import (
	"testing"

	"escalafin-messaging/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"hola", "buenas tardes"}, Keywords(" Hola , ,Buenas Tardes,"))
	assert.Empty(t, Keywords(" , "))
}

func TestTriggerMatches(t *testing.T) {
	cases := []struct {
		name    string
		rule    models.ChatbotRule
		text    string
		want    bool
		wantErr bool
	}{
		{"keyword substring", models.ChatbotRule{TriggerType: models.TriggerKeyword, Trigger: "hola,buenas"}, "¡HOLA! quiero info", true, false},
		{"keyword miss", models.ChatbotRule{TriggerType: models.TriggerKeyword, Trigger: "saldo"}, "hola", false, false},
		{"regex case insensitive", models.ChatbotRule{TriggerType: models.TriggerRegex, Trigger: `^cu[aá]nto debo`}, "Cuánto debo este mes", true, false},
		{"regex miss", models.ChatbotRule{TriggerType: models.TriggerRegex, Trigger: `^\d+$`}, "abc", false, false},
		{"regex invalid", models.ChatbotRule{TriggerType: models.TriggerRegex, Trigger: `([`}, "x", false, true},
		{"unknown type", models.ChatbotRule{TriggerType: "FUZZY", Trigger: "x"}, "x", false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TriggerMatches(tc.rule, tc.text)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseConditions(t *testing.T) {
	conds, err := ParseConditions([]byte(`{"hasActiveLoans": false, "minBalance": 10}`))
	require.NoError(t, err)
	require.Len(t, conds, 2)
	assert.Equal(t, HasActiveLoans{Want: false}, conds[0])
	assert.Equal(t, "minBalance", conds[1].conditionKey())

	conds, err = ParseConditions(nil)
	require.NoError(t, err)
	assert.Empty(t, conds)

	conds, err = ParseConditions([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, conds)

	_, err = ParseConditions([]byte(`{"hasActiveLoans": "yes"}`))
	assert.Error(t, err)
	_, err = ParseConditions([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestParseActions(t *testing.T) {
	actions, err := ParseActions([]byte(`{"assignToAdvisor": true, "createNotification": {"title": "Cliente pide asesor"}, "sendEmail": true}`))
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, AssignToAdvisor{}, actions[0])
	assert.Equal(t, CreateNotification{Title: "Cliente pide asesor"}, actions[1])
	assert.Equal(t, UnknownAction{Key: "sendEmail", Raw: []byte("true")}, actions[2])

	actions, err = ParseActions([]byte(`{"assignToAdvisor": false, "createNotification": true}`))
	require.NoError(t, err)
	assert.Equal(t, []Action{CreateNotification{}}, actions)

	_, err = ParseActions([]byte(`{"assignToAdvisor": "please"}`))
	assert.Error(t, err)
}

func TestValidateRule(t *testing.T) {
	valid := models.ChatbotRule{Name: "saludo", TriggerType: models.TriggerKeyword, Trigger: "hola", Response: "Hola {nombre}"}
	require.NoError(t, ValidateRule(valid))

	bad := valid
	bad.TriggerType = models.TriggerRegex
	bad.Trigger = "(unclosed"
	assert.Error(t, ValidateRule(bad))

	bad = valid
	bad.Trigger = " , "
	assert.Error(t, ValidateRule(bad))

	bad = valid
	bad.Conditions = []byte(`"nope"`)
	assert.Error(t, ValidateRule(bad))

	bad = valid
	bad.Response = ""
	assert.Error(t, ValidateRule(bad))
}
