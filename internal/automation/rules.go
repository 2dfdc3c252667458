package automation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"escalafin-messaging/internal/models"
)

// Condition is one predicate from a rule's conditions object.
type Condition interface {
	conditionKey() string
}

// HasActiveLoans holds when whether the client has an ACTIVE loan equals Want.
type HasActiveLoans struct {
	Want bool
}

// UnknownCondition is a key this version does not evaluate. It always holds.
type UnknownCondition struct {
	Key string
	Raw json.RawMessage
}

func (HasActiveLoans) conditionKey() string     { return "hasActiveLoans" }
func (c UnknownCondition) conditionKey() string { return c.Key }

// Action is one side effect from a rule's actions object.
type Action interface {
	actionKey() string
}

// AssignToAdvisor assigns the conversation to the client's advisor.
type AssignToAdvisor struct{}

// CreateNotification leaves an in-app notification for the client's advisor.
type CreateNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// UnknownAction is a key this version does not execute.
type UnknownAction struct {
	Key string
	Raw json.RawMessage
}

func (AssignToAdvisor) actionKey() string    { return "assignToAdvisor" }
func (CreateNotification) actionKey() string { return "createNotification" }
func (a UnknownAction) actionKey() string    { return a.Key }

// ParseConditions decodes a conditions object such as {"hasActiveLoans": true}.
// Empty and null blobs yield no conditions. Keys are returned in sorted order.
func ParseConditions(raw []byte) ([]Condition, error) {
	fields, err := decodeObject(raw)
	if err != nil || fields == nil {
		return nil, err
	}

	out := make([]Condition, 0, len(fields))
	for _, key := range sortedKeys(fields) {
		value := fields[key]
		switch key {
		case "hasActiveLoans":
			var want bool
			if err := json.Unmarshal(value, &want); err != nil {
				return nil, fmt.Errorf("hasActiveLoans must be a boolean: %w", err)
			}
			out = append(out, HasActiveLoans{Want: want})
		default:
			out = append(out, UnknownCondition{Key: key, Raw: value})
		}
	}
	return out, nil
}

// ParseActions decodes an actions object. Boolean false disables an action;
// createNotification also accepts {"title": ..., "body": ...}.
func ParseActions(raw []byte) ([]Action, error) {
	fields, err := decodeObject(raw)
	if err != nil || fields == nil {
		return nil, err
	}

	out := make([]Action, 0, len(fields))
	for _, key := range sortedKeys(fields) {
		value := fields[key]
		switch key {
		case "assignToAdvisor":
			enabled, err := flag(value)
			if err != nil {
				return nil, fmt.Errorf("assignToAdvisor: %w", err)
			}
			if enabled {
				out = append(out, AssignToAdvisor{})
			}
		case "createNotification":
			var notify CreateNotification
			if enabled, err := flag(value); err == nil {
				if enabled {
					out = append(out, notify)
				}
				continue
			}
			if err := json.Unmarshal(value, &notify); err != nil {
				return nil, fmt.Errorf("createNotification: %w", err)
			}
			out = append(out, notify)
		default:
			out = append(out, UnknownAction{Key: key, Raw: value})
		}
	}
	return out, nil
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return nil, fmt.Errorf("expected a JSON object: %w", err)
	}
	return fields, nil
}

func flag(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, fmt.Errorf("expected a boolean")
	}
	return b, nil
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Keywords splits a KEYWORD trigger into trimmed, lower-cased, non-empty keywords.
func Keywords(trigger string) []string {
	parts := strings.Split(trigger, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.ToLower(strings.TrimSpace(p)); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// TriggerMatches reports whether text fires the rule's trigger. REGEX triggers are
// compiled case-insensitively; an invalid pattern is returned as an error.
func TriggerMatches(rule models.ChatbotRule, text string) (bool, error) {
	switch rule.TriggerType {
	case models.TriggerKeyword:
		lowered := strings.ToLower(text)
		for _, k := range Keywords(rule.Trigger) {
			if strings.Contains(lowered, k) {
				return true, nil
			}
		}
		return false, nil
	case models.TriggerRegex:
		re, err := regexp.Compile("(?i)" + rule.Trigger)
		if err != nil {
			return false, fmt.Errorf("invalid regex trigger: %w", err)
		}
		return re.MatchString(text), nil
	default:
		return false, fmt.Errorf("unknown trigger type %q", rule.TriggerType)
	}
}

// ValidateRule checks a rule before it is stored.
func ValidateRule(rule models.ChatbotRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(rule.Response) == "" {
		return fmt.Errorf("response is required")
	}
	switch rule.TriggerType {
	case models.TriggerKeyword:
		if len(Keywords(rule.Trigger)) == 0 {
			return fmt.Errorf("keyword trigger needs at least one keyword")
		}
	case models.TriggerRegex:
		if _, err := regexp.Compile("(?i)" + rule.Trigger); err != nil {
			return fmt.Errorf("invalid regex trigger: %w", err)
		}
	default:
		return fmt.Errorf("trigger_type must be KEYWORD or REGEX")
	}
	if _, err := ParseConditions(rule.Conditions); err != nil {
		return fmt.Errorf("conditions: %w", err)
	}
	if _, err := ParseActions(rule.Actions); err != nil {
		return fmt.Errorf("actions: %w", err)
	}
	return nil
}
