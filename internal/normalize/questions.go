package normalize

import "encoding/json"

// normalizeQuestions accepts either an already-structured question sequence
// or a JSON-string-encoded one. The second return is false when the payload
// carried no usable questions value (an explicit null on the event).
func normalizeQuestions(value any) ([]SurveyQuestion, bool) {
	switch v := value.(type) {
	case []any:
		return mapQuestionArray(v), true
	case string:
		var parsed []any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, false
		}
		return mapQuestionArray(parsed), true
	default:
		return nil, false
	}
}

// mapQuestionArray maps question entries, dropping anything that is not an
// object. Choices are always a non-nil slice.
func mapQuestionArray(items []any) []SurveyQuestion {
	out := make([]SurveyQuestion, 0, len(items))
	for _, item := range items {
		q, ok := item.(map[string]any)
		if !ok {
			continue
		}

		mapped := SurveyQuestion{Choices: []SurveyChoice{}}
		if id, ok := coerceInt(q["id"]); ok {
			mapped.ID = id
		}
		if question, ok := q["question"].(string); ok {
			mapped.Question = question
		}
		if qt, ok := firstString(q, []string{"question_type", "questionType"}); ok {
			mapped.QuestionType = &qt
		}
		mapped.HasChoices = coerceBool(q["has_choices"], q["hasChoices"])
		if pos, ok := coerceInt(q["position"]); ok {
			mapped.Position = int(pos)
		}

		if rawChoices, ok := q["choices"].([]any); ok {
			for _, choiceValue := range rawChoices {
				c, ok := choiceValue.(map[string]any)
				if !ok {
					continue
				}
				choice := SurveyChoice{}
				if id, ok := coerceInt(c["id"]); ok {
					choice.ID = id
				}
				if label, ok := c["choice"].(string); ok {
					choice.Choice = label
				}
				if pos, ok := coerceInt(c["position"]); ok {
					choice.Position = int(pos)
				}
				mapped.Choices = append(mapped.Choices, choice)
			}
		}

		out = append(out, mapped)
	}
	return out
}

func coerceBool(values ...any) bool {
	for _, value := range values {
		switch v := value.(type) {
		case bool:
			return v
		case string:
			if v == "true" || v == "1" {
				return true
			}
			if v == "false" || v == "0" {
				return false
			}
		case float64:
			return v != 0
		}
	}
	return false
}
