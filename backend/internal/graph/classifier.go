package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	apperrors "buddy/backend/pkg/errors"
)

// Classify turns a label list and property map into a typed Node. Only the
// first label is consulted. The stable identity is read from props["id"].
func Classify(labels []string, props map[string]any) (Node, error) {
	return classify(labels, props, "")
}

// ClassifyOwned is Classify with every User bound to owner, whatever user_id
// props carries. An empty owner behaves like Classify.
func ClassifyOwned(labels []string, props map[string]any, owner string) (Node, error) {
	return classify(labels, props, owner)
}

func classify(labels []string, props map[string]any, owner string) (Node, error) {
	if len(labels) == 0 {
		return nil, apperrors.NewUnrecognizedLabel("")
	}
	label := labels[0]
	id, err := optionalString(label, props, "id")
	if err != nil {
		return nil, err
	}

	switch label {
	case LabelUser:
		if owner != "" {
			return User{ID: id, UserID: owner}, nil
		}
		userID, err := requireString(label, props, "user_id")
		if err != nil {
			return nil, err
		}
		return User{ID: id, UserID: userID}, nil

	case LabelInterest:
		name, err := requireString(label, props, "name")
		if err != nil {
			return nil, err
		}
		return Interest{ID: id, Name: name}, nil

	case LabelGoal:
		description, err := requireString(label, props, "description")
		if err != nil {
			return nil, err
		}
		timeframe, err := optionalEnum(label, props, "timeframe", "-", TimeframeShort, TimeframeMedium, TimeframeLong)
		if err != nil {
			return nil, err
		}
		return Goal{ID: id, Description: description, Timeframe: timeframe}, nil

	case LabelMotivation:
		title, err := requireString(label, props, "title")
		if err != nil {
			return nil, err
		}
		reason, err := requireString(label, props, "reason")
		if err != nil {
			return nil, err
		}
		return Motivation{ID: id, Title: title, Reason: reason}, nil

	case LabelTask:
		action, err := requireString(label, props, "action")
		if err != nil {
			return nil, err
		}
		status, err := optionalEnum(label, props, "status", "_", StatusPending, StatusInProgress, StatusCompleted, StatusFailed)
		if err != nil {
			return nil, err
		}
		return Task{ID: id, Action: action, Status: status}, nil

	case LabelDate:
		day, err := requireInt(label, props, "day", 0, 31)
		if err != nil {
			return nil, err
		}
		month, err := requireInt(label, props, "month", 0, 12)
		if err != nil {
			return nil, err
		}
		year, err := requireInt(label, props, "year", 0, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		return Date{ID: id, Day: uint8(day), Month: uint8(month), Year: uint16(year)}, nil

	default:
		return nil, apperrors.NewUnrecognizedLabel(label)
	}
}

// FromGraphNode classifies an exchange node. The local ID stands in for the
// identity when props carries none.
func FromGraphNode(g GraphNode) (Node, error) {
	props := g.Properties
	if _, ok := props["id"]; !ok && g.ID != "" {
		props = make(map[string]any, len(g.Properties)+1)
		for k, v := range g.Properties {
			props[k] = v
		}
		props["id"] = g.ID
	}
	return Classify([]string{g.Label}, props)
}

// ============================================================================
// Property Readers
// ============================================================================

func requireString(label string, props map[string]any, key string) (string, error) {
	val, ok := props[key]
	if !ok || val == nil {
		return "", apperrors.NewMissingRequiredProperty(label, key)
	}
	str, ok := val.(string)
	if !ok {
		return "", apperrors.NewInvalidProperty(label, key, fmt.Sprintf("expected string, got %T", val))
	}
	return str, nil
}

func optionalString(label string, props map[string]any, key string) (string, error) {
	val, ok := props[key]
	if !ok || val == nil {
		return "", nil
	}
	str, ok := val.(string)
	if !ok {
		return "", apperrors.NewInvalidProperty(label, key, fmt.Sprintf("expected string, got %T", val))
	}
	return str, nil
}

// optionalEnum lower-cases the value and folds spaces, hyphens and underscores
// into sep before checking it against allowed.
func optionalEnum(label string, props map[string]any, key, sep string, allowed ...string) (string, error) {
	str, err := optionalString(label, props, key)
	if err != nil || str == "" {
		return "", err
	}
	normalized := strings.ToLower(strings.TrimSpace(str))
	normalized = strings.NewReplacer(" ", sep, "-", sep, "_", sep).Replace(normalized)
	for _, a := range allowed {
		if normalized == a {
			return a, nil
		}
	}
	return "", apperrors.NewInvalidProperty(label, key, fmt.Sprintf("%q is not one of %s", str, strings.Join(allowed, ", ")))
}

func requireInt(label string, props map[string]any, key string, min, max int64) (int64, error) {
	val, ok := props[key]
	if !ok || val == nil {
		return 0, apperrors.NewMissingRequiredProperty(label, key)
	}

	var i int64
	switch v := val.(type) {
	case int64:
		i = v
	case int:
		i = int64(v)
	case int32:
		i = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, apperrors.NewInvalidProperty(label, key, fmt.Sprintf("%s is not an integer", v))
		}
		i = parsed
	case float64:
		if v != math.Trunc(v) {
			return 0, apperrors.NewInvalidProperty(label, key, fmt.Sprintf("%v is not an integer", v))
		}
		i = int64(v)
	default:
		return 0, apperrors.NewInvalidProperty(label, key, fmt.Sprintf("expected integer, got %T", val))
	}

	if i < min || i > max {
		return 0, apperrors.NewInvalidProperty(label, key, fmt.Sprintf("%d is outside [%d, %d]", i, min, max))
	}
	return i, nil
}
