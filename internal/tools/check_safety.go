package tools

import (
	"encoding/json"

	"github.com/legaladvisor/engine/internal/errs"
)

// CheckSafetyTool wraps the SafetyChecker as a tool.
type CheckSafetyTool struct{}

func (CheckSafetyTool) Name() string        { return "check_safety" }
func (CheckSafetyTool) Description() string { return "Run the safety rewriter over draft content." }

func (CheckSafetyTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {"type": "string"}
		},
		"required": ["content"]
	}`)
}

type checkSafetyArgs struct {
	Content string `json:"content"`
}

func (CheckSafetyTool) Execute(ctx *Context, args json.RawMessage) (json.RawMessage, error) {
	var in checkSafetyArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errs.Wrap(errs.KindTool, err, "check_safety: decode arguments")
	}
	if ctx.SafetyChecker == nil {
		return nil, errs.New(errs.KindInvalidState, "check_safety: no safety checker configured")
	}
	result := ctx.SafetyChecker.Check(in.Content)
	return json.Marshal(result)
}
