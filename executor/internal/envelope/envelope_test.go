package envelope_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/planloop/executor/internal/envelope"
)

func TestExtractJSON(t *testing.T) {
	testCases := map[string]struct {
		input string
		want  string
	}{
		"plain object": {
			input: `{"success": true}`,
			want:  `{"success": true}`,
		},
		"fenced block": {
			input: "Here you go:\n```json\n{\"success\": true}\n```\nDone.",
			want:  `{"success": true}`,
		},
		"fence without language": {
			input: "```\n{\"success\": false}\n```",
			want:  `{"success": false}`,
		},
		"object inside prose": {
			input: `The result is {"success": true, "data": {"k": "v"}} as requested.`,
			want:  `{"success": true, "data": {"k": "v"}}`,
		},
		"brace inside string": {
			input: `{"success": true, "data": {"note": "use { and } freely"}}`,
			want:  `{"success": true, "data": {"note": "use { and } freely"}}`,
		},
		"escaped quote inside string": {
			input: `{"success": true, "data": {"note": "a \"quoted\" word"}}`,
			want:  `{"success": true, "data": {"note": "a \"quoted\" word"}}`,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			gt.Equal(t, envelope.ExtractJSON(tc.input), tc.want)
		})
	}
}

func TestParseResult(t *testing.T) {
	t.Run("full envelope", func(t *testing.T) {
		result := gt.R1(envelope.ParseResult("```json\n" + `{
			"success": true,
			"data": {"report": "weekly.pdf"},
			"task_updates": [{"task_id": "002", "status": "Done"}],
			"tools_used": ["search"]
		}` + "\n```")).NoError(t)

		gt.True(t, result.Success)
		gt.Equal(t, result.Data["report"], "weekly.pdf")
		gt.A(t, result.TaskUpdates).Length(1)
		gt.Equal(t, result.TaskUpdates[0].TaskID, "002")
		gt.A(t, result.ToolsUsed).Length(1)
	})

	t.Run("missing params envelope", func(t *testing.T) {
		result := gt.R1(envelope.ParseResult(`{
			"success": false,
			"reason": "missing_params",
			"required_params": [{"name": "approver", "type": "string"}]
		}`)).NoError(t)

		gt.False(t, result.Success)
		gt.Equal(t, result.Reason, "missing_params")
		gt.A(t, result.RequiredParams).Length(1)
	})

	t.Run("prose only fails", func(t *testing.T) {
		_, err := envelope.ParseResult("I could not complete the task.")
		gt.Error(t, err)
	})
}
