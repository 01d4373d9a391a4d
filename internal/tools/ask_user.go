package tools

import (
	"encoding/json"

	"github.com/legaladvisor/engine/internal/errs"
)

// AskUserTool surfaces the next intake question for a scenario at a
// given index, grounded on the teacher's tools/sessions/tools.go
// pattern of small session-state-aware tools.
type AskUserTool struct{}

func (AskUserTool) Name() string        { return "ask_user" }
func (AskUserTool) Description() string { return "Return the intake question at the given index for a scenario." }

func (AskUserTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"scenario": {"type": "string"},
			"index": {"type": "integer"}
		},
		"required": ["scenario", "index"]
	}`)
}

type askUserArgs struct {
	Scenario string `json:"scenario"`
	Index    int    `json:"index"`
}

type askUserResult struct {
	Done     bool   `json:"done"`
	ID       int    `json:"id,omitempty"`
	Question string `json:"question,omitempty"`
	Required bool   `json:"required,omitempty"`
	Current  int    `json:"current,omitempty"`
	Total    int    `json:"total"`
}

func (AskUserTool) Execute(_ *Context, args json.RawMessage) (json.RawMessage, error) {
	var in askUserArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errs.Wrap(errs.KindTool, err, "ask_user: decode arguments")
	}
	if in.Scenario == "" {
		return nil, errs.New(errs.KindTool, "ask_user missing scenario")
	}

	questions := CatalogFor(in.Scenario)
	if in.Index < 0 || in.Index >= len(questions) {
		return json.Marshal(askUserResult{Done: true, Total: len(questions)})
	}

	q := questions[in.Index]
	return json.Marshal(askUserResult{
		Done:     false,
		ID:       in.Index,
		Question: q.Text,
		Required: q.Required,
		Current:  in.Index + 1,
		Total:    len(questions),
	})
}
