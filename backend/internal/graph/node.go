package graph

import (
	"fmt"
	"time"
)

// Node is one of the fixed schema variants. The set is closed: only types in
// this package implement it.
type Node interface {
	// Label is the schema label of the variant
	Label() string
	// Identity is the stable identifier, empty until the node is persisted
	Identity() string
	// Describe renders the node as one line of chat context
	Describe() string
	// EmbeddingText returns the text to embed, or false for variants that carry no embedding
	EmbeddingText() (string, bool)
	// ToGraphNode converts the variant back to the exchange format
	ToGraphNode() GraphNode

	sealed()
}

// Goal timeframes
const (
	TimeframeShort  = "short-term"
	TimeframeMedium = "medium-term"
	TimeframeLong   = "long-term"
)

// Task statuses
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// User is the anchor of a user's subgraph
type User struct {
	ID     string
	UserID string
}

func (User) Label() string      { return LabelUser }
func (n User) Identity() string { return n.ID }
func (n User) Describe() string { return fmt.Sprintf("User %s", n.UserID) }

func (User) EmbeddingText() (string, bool) { return "", false }

func (n User) ToGraphNode() GraphNode {
	return graphNodeOf(LabelUser, n.ID, map[string]any{"user_id": n.UserID})
}

// Interest is something the user cares about
type Interest struct {
	ID   string
	Name string
}

func (Interest) Label() string      { return LabelInterest }
func (n Interest) Identity() string { return n.ID }
func (n Interest) Describe() string { return fmt.Sprintf("Interest: %s", n.Name) }

func (n Interest) EmbeddingText() (string, bool) { return n.Name, true }

func (n Interest) ToGraphNode() GraphNode {
	return graphNodeOf(LabelInterest, n.ID, map[string]any{"name": n.Name})
}

// Goal is an outcome the user is working toward. Timeframe is optional.
type Goal struct {
	ID          string
	Description string
	Timeframe   string
}

func (Goal) Label() string      { return LabelGoal }
func (n Goal) Identity() string { return n.ID }

func (n Goal) Describe() string {
	if n.Timeframe == "" {
		return fmt.Sprintf("Goal: %s", n.Description)
	}
	return fmt.Sprintf("Goal: %s with timeframe %s", n.Description, n.Timeframe)
}

func (n Goal) EmbeddingText() (string, bool) { return n.Description, true }

func (n Goal) ToGraphNode() GraphNode {
	props := map[string]any{"description": n.Description}
	if n.Timeframe != "" {
		props["timeframe"] = n.Timeframe
	}
	return graphNodeOf(LabelGoal, n.ID, props)
}

// Motivation is the reason behind a goal
type Motivation struct {
	ID     string
	Title  string
	Reason string
}

func (Motivation) Label() string      { return LabelMotivation }
func (n Motivation) Identity() string { return n.ID }

func (n Motivation) Describe() string {
	return fmt.Sprintf("Motivation: %s, because %s", n.Title, n.Reason)
}

func (n Motivation) EmbeddingText() (string, bool) {
	return fmt.Sprintf("%s. %s", n.Title, n.Reason), true
}

func (n Motivation) ToGraphNode() GraphNode {
	return graphNodeOf(LabelMotivation, n.ID, map[string]any{"title": n.Title, "reason": n.Reason})
}

// Task is a concrete step toward a goal. Status is optional.
type Task struct {
	ID     string
	Action string
	Status string
}

func (Task) Label() string      { return LabelTask }
func (n Task) Identity() string { return n.ID }

func (n Task) Describe() string {
	if n.Status == "" {
		return fmt.Sprintf("Task: %s", n.Action)
	}
	return fmt.Sprintf("Task: %s [%s]", n.Action, n.Status)
}

func (n Task) EmbeddingText() (string, bool) { return n.Action, true }

func (n Task) ToGraphNode() GraphNode {
	props := map[string]any{"action": n.Action}
	if n.Status != "" {
		props["status"] = n.Status
	}
	return graphNodeOf(LabelTask, n.ID, props)
}

// Date is a calendar day, used to timestamp tasks
type Date struct {
	ID    string
	Day   uint8
	Month uint8
	Year  uint16
}

func (Date) Label() string      { return LabelDate }
func (n Date) Identity() string { return n.ID }

func (n Date) Describe() string {
	return fmt.Sprintf("Date: %s", n.format())
}

func (n Date) EmbeddingText() (string, bool) {
	return fmt.Sprintf("Today is the %d of %d, %d.", n.Day, n.Month, n.Year), true
}

func (n Date) ToGraphNode() GraphNode {
	return graphNodeOf(LabelDate, n.ID, map[string]any{
		"day":   int64(n.Day),
		"month": int64(n.Month),
		"year":  int64(n.Year),
	})
}

// format renders the date as "January 02, 2006" when the fields form a real date
func (n Date) format() string {
	t := time.Date(int(n.Year), time.Month(n.Month), int(n.Day), 0, 0, 0, 0, time.UTC)
	if t.Day() != int(n.Day) || int(t.Month()) != int(n.Month) {
		return fmt.Sprintf("%d/%d/%d", n.Day, n.Month, n.Year)
	}
	return t.Format("January 02, 2006")
}

// DateOf builds a Date node for t
func DateOf(t time.Time) Date {
	return Date{Day: uint8(t.Day()), Month: uint8(t.Month()), Year: uint16(t.Year())}
}

func (User) sealed()       {}
func (Interest) sealed()   {}
func (Goal) sealed()       {}
func (Motivation) sealed() {}
func (Task) sealed()       {}
func (Date) sealed()       {}

func graphNodeOf(label, id string, props map[string]any) GraphNode {
	if id != "" {
		props["id"] = id
	}
	return GraphNode{ID: id, Label: label, Properties: props}
}
