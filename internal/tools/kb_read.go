package tools

import (
	"encoding/json"

	"github.com/legaladvisor/engine/internal/errs"
)

// KBReadTool wraps Retriever.ReadFile as a tool.
type KBReadTool struct{}

func (KBReadTool) Name() string        { return "kb_read" }
func (KBReadTool) Description() string { return "Read the full content of a knowledge-base file." }

func (KBReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string"}
		},
		"required": ["file_path"]
	}`)
}

type kbReadArgs struct {
	FilePath string `json:"file_path"`
}

type kbReadResult struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func (KBReadTool) Execute(ctx *Context, args json.RawMessage) (json.RawMessage, error) {
	var in kbReadArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errs.Wrap(errs.KindTool, err, "kb_read: decode arguments")
	}
	if in.FilePath == "" {
		return nil, errs.New(errs.KindTool, "kb_read missing file_path")
	}
	if ctx.Retriever == nil {
		return nil, errs.New(errs.KindInvalidState, "kb_read: no retriever configured")
	}
	content, err := ctx.Retriever.ReadFile(in.FilePath)
	if err != nil {
		return nil, err
	}
	return json.Marshal(kbReadResult{FilePath: in.FilePath, Content: content})
}
