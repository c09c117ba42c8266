package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bubblbridge/internal/sdk"
)

func TestNormalizeSurveyType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		choices int
		want    string
	}{
		{"", 0, "openEnded"},
		{"", 2, "singleChoice"},
		{"   ", 1, "singleChoice"},
		{"choice", 1, "singleChoice"},
		{"choice", 2, "multipleChoice"},
		{"single_choice", 0, "singleChoice"},
		{"Single Choice", 0, "singleChoice"},
		{"radio", 0, "singleChoice"},
		{"multiple-choice", 0, "multipleChoice"},
		{"checkbox", 0, "multipleChoice"},
		{"checkboxes", 0, "multipleChoice"},
		{"text", 0, "openEnded"},
		{"open_ended", 0, "openEnded"},
		{"OPEN_ENDED_TEXT", 0, "openEnded"},
		{"numeric", 0, "number"},
		{"int", 0, "number"},
		{"yes_no", 0, "boolean"},
		{"bool", 0, "boolean"},
		{"stars", 0, "rating"},
		{"range", 0, "slider"},
		{"emoji-scale", 0, "emoji-scale"},
		{"  custom  ", 0, "custom"},
	}
	for _, tc := range tests {
		t.Run(tc.raw+"_"+tc.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NormalizeSurveyType(tc.raw, tc.choices))
		})
	}
}

func TestParseSurveyAnswers(t *testing.T) {
	t.Parallel()

	raw := []map[string]any{
		{
			"question_id": float64(12),
			"type":        "choice",
			"value":       "",
			"choice": []any{
				map[string]any{"choice_id": float64(3)},
				map[string]any{"choice_id": float64(5)},
				map[string]any{"label": "no id, dropped"},
			},
		},
		{
			"question_id": 13,
			"type":        "text",
			"value":       "free form",
		},
		{
			// no question_id, dropped entirely
			"type":  "text",
			"value": "orphan",
		},
	}

	parsed := ParseSurveyAnswers(raw)
	require.Len(t, parsed, 2)

	assert.Equal(t, 12, parsed[0].QuestionID)
	assert.Equal(t, "multipleChoice", parsed[0].Type, "two selections promote a bare choice")
	assert.Equal(t, []sdk.ChoiceSelection{{ChoiceID: 3}, {ChoiceID: 5}}, parsed[0].Choice)

	assert.Equal(t, 13, parsed[1].QuestionID)
	assert.Equal(t, "openEnded", parsed[1].Type)
	assert.Equal(t, "free form", parsed[1].Value)
	assert.Nil(t, parsed[1].Choice)
}

func TestParseSurveyAnswersFractionalIDDropped(t *testing.T) {
	t.Parallel()

	parsed := ParseSurveyAnswers([]map[string]any{
		{"question_id": 1.5, "type": "text", "value": "x"},
	})
	assert.Empty(t, parsed)
}

func TestMaskAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want string
	}{
		{"", "****"},
		{"short", "****"},
		{"12345678", "****"},
		{"123456789", "1234****6789"},
		{"bk_live_0a1b2c3d4e5f", "bk_l****4e5f"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, MaskAPIKey(tc.key), "key %q", tc.key)
	}
}
