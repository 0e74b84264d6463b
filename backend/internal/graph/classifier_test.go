package graph

import (
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "buddy/backend/pkg/errors"
)

func TestRoundTrip_AllVariants(t *testing.T) {
	variants := []Node{
		User{ID: "id-u", UserID: "7f1c2a9e-0000-4000-8000-000000000001"},
		Interest{ID: "id-i", Name: "hiking"},
		Goal{ID: "id-g", Description: "run a marathon", Timeframe: TimeframeLong},
		Goal{Description: "learn go"},
		Motivation{ID: "id-m", Title: "Health", Reason: "wants to feel fit"},
		Task{ID: "id-t", Action: "buy running shoes", Status: StatusInProgress},
		Task{Action: "stretch"},
		Date{ID: "id-d", Day: 5, Month: 3, Year: 2024},
	}

	for _, v := range variants {
		t.Run(v.Label(), func(t *testing.T) {
			back, err := FromGraphNode(v.ToGraphNode())
			require.NoError(t, err)
			assert.Equal(t, v, back)
		})
	}
}

func TestClassify_FirstLabelWins(t *testing.T) {
	node, err := Classify([]string{LabelInterest, LabelGoal}, map[string]any{"name": "chess"})
	require.NoError(t, err)
	assert.Equal(t, Interest{Name: "chess"}, node)
}

func TestClassify_Errors(t *testing.T) {
	t.Run("unknown label", func(t *testing.T) {
		_, err := Classify([]string{"Pet"}, map[string]any{})
		var target *apperrors.ErrUnrecognizedLabel
		require.True(t, stderrors.As(err, &target))
		assert.Equal(t, "Pet", target.Label)
	})

	t.Run("no labels", func(t *testing.T) {
		_, err := Classify(nil, map[string]any{})
		var target *apperrors.ErrUnrecognizedLabel
		require.True(t, stderrors.As(err, &target))
	})

	t.Run("missing property", func(t *testing.T) {
		_, err := Classify([]string{LabelMotivation}, map[string]any{"title": "x"})
		var target *apperrors.ErrMissingRequiredProperty
		require.True(t, stderrors.As(err, &target))
		assert.Equal(t, "reason", target.Property)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := Classify([]string{LabelInterest}, map[string]any{"name": 42})
		var target *apperrors.ErrInvalidProperty
		require.True(t, stderrors.As(err, &target))
		assert.Equal(t, "name", target.Property)
	})

	t.Run("month out of range", func(t *testing.T) {
		_, err := Classify([]string{LabelDate}, map[string]any{"day": 1, "month": 13, "year": 2024})
		var target *apperrors.ErrInvalidProperty
		require.True(t, stderrors.As(err, &target))
		assert.Equal(t, "month", target.Property)
	})

	t.Run("fractional day", func(t *testing.T) {
		_, err := Classify([]string{LabelDate}, map[string]any{"day": 1.5, "month": 1, "year": 2024})
		var target *apperrors.ErrInvalidProperty
		require.True(t, stderrors.As(err, &target))
	})

	t.Run("bad timeframe", func(t *testing.T) {
		_, err := Classify([]string{LabelGoal}, map[string]any{"description": "x", "timeframe": "someday"})
		var target *apperrors.ErrInvalidProperty
		require.True(t, stderrors.As(err, &target))
		assert.Equal(t, "timeframe", target.Property)
	})
}

func TestClassify_Coercion(t *testing.T) {
	node, err := Classify([]string{LabelDate}, map[string]any{
		"day":   float64(7),
		"month": json.Number("11"),
		"year":  2025,
	})
	require.NoError(t, err)
	assert.Equal(t, Date{Day: 7, Month: 11, Year: 2025}, node)

	node, err = Classify([]string{LabelGoal}, map[string]any{"description": "x", "timeframe": "Short Term"})
	require.NoError(t, err)
	assert.Equal(t, TimeframeShort, node.(Goal).Timeframe)

	node, err = Classify([]string{LabelTask}, map[string]any{"action": "x", "status": "In Progress"})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, node.(Task).Status)

	node, err = Classify([]string{LabelTask}, map[string]any{"action": "x", "status": nil})
	require.NoError(t, err)
	assert.Empty(t, node.(Task).Status)
}

func TestNode_EmbeddingText(t *testing.T) {
	_, ok := User{UserID: "u"}.EmbeddingText()
	assert.False(t, ok)

	text, ok := Motivation{Title: "Health", Reason: "feel fit"}.EmbeddingText()
	require.True(t, ok)
	assert.Equal(t, "Health. feel fit", text)

	text, ok = Date{Day: 5, Month: 3, Year: 2024}.EmbeddingText()
	require.True(t, ok)
	assert.Equal(t, "Today is the 5 of 3, 2024.", text)
}

func TestNode_Describe(t *testing.T) {
	assert.Equal(t, "Goal: run a marathon", Goal{Description: "run a marathon"}.Describe())
	assert.Equal(t, "Goal: run a marathon with timeframe long-term",
		Goal{Description: "run a marathon", Timeframe: TimeframeLong}.Describe())
	assert.Equal(t, "Date: March 05, 2024", Date{Day: 5, Month: 3, Year: 2024}.Describe())
	assert.Equal(t, "Date: 0/0/2024", Date{Year: 2024}.Describe())
}

func TestDateOf(t *testing.T) {
	d := DateOf(time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, Date{Day: 5, Month: 3, Year: 2024}, d)
}

func TestClassifyOwned(t *testing.T) {
	n, err := ClassifyOwned([]string{LabelUser}, map[string]any{"id": "u"}, "abc")
	require.NoError(t, err)
	assert.Equal(t, User{ID: "u", UserID: "abc"}, n)

	n, err = ClassifyOwned([]string{LabelUser}, map[string]any{"user_id": "other"}, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", n.(User).UserID)

	// only User nodes are bound
	n, err = ClassifyOwned([]string{LabelInterest}, map[string]any{"name": "chess"}, "abc")
	require.NoError(t, err)
	assert.Equal(t, Interest{Name: "chess"}, n)

	_, err = ClassifyOwned([]string{LabelUser}, map[string]any{}, "")
	assert.Error(t, err)
}
