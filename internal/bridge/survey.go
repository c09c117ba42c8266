package bridge

import (
	"strings"

	"bubblbridge/internal/sdk"
)

// NormalizeSurveyType maps the loose type names seen in survey payloads onto
// the canonical set the vendor accepts. Unknown non-empty types pass through
// trimmed; an empty type is inferred from whether choices were selected.
// A bare "choice" becomes single or multiple depending on selection count.
func NormalizeSurveyType(raw string, choiceCount int) string {
	trimmed := strings.TrimSpace(raw)
	canonical := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(trimmed))

	if canonical == "" {
		if choiceCount > 0 {
			return "singleChoice"
		}
		return "openEnded"
	}

	switch canonical {
	case "choice":
		if choiceCount > 1 {
			return "multipleChoice"
		}
		return "singleChoice"
	case "singlechoice", "radio":
		return "singleChoice"
	case "multiplechoice", "checkbox", "checkboxes":
		return "multipleChoice"
	case "text", "openended", "openendedtext":
		return "openEnded"
	case "number", "numeric", "integer", "int":
		return "number"
	case "boolean", "bool", "yesno":
		return "boolean"
	case "rating", "star", "stars":
		return "rating"
	case "slider", "range":
		return "slider"
	default:
		return trimmed
	}
}

// ParseSurveyAnswers converts loosely typed answer objects into vendor
// answers. Entries without a numeric question_id are dropped; choice
// selections without a numeric choice_id are dropped; an empty selection
// list collapses to none.
func ParseSurveyAnswers(raw []map[string]any) []sdk.SurveyAnswer {
	parsed := make([]sdk.SurveyAnswer, 0, len(raw))
	for _, entry := range raw {
		questionID, ok := intValue(entry["question_id"])
		if !ok {
			continue
		}

		rawType, _ := entry["type"].(string)
		value, _ := entry["value"].(string)

		var selections []sdk.ChoiceSelection
		if choices, ok := entry["choice"].([]any); ok {
			for _, c := range choices {
				m, ok := c.(map[string]any)
				if !ok {
					continue
				}
				if id, ok := intValue(m["choice_id"]); ok {
					selections = append(selections, sdk.ChoiceSelection{ChoiceID: id})
				}
			}
		}

		parsed = append(parsed, sdk.SurveyAnswer{
			QuestionID: questionID,
			Type:       NormalizeSurveyType(rawType, len(selections)),
			Value:      value,
			Choice:     selections,
		})
	}
	return parsed
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
