package tools

import (
	"encoding/json"

	"github.com/legaladvisor/engine/internal/errs"
)

// KBSearchTool wraps Retriever.Search as a tool, grounded on the
// teacher's tools/rag/search.go wiring of Retriever into the tool
// protocol.
type KBSearchTool struct{}

func (KBSearchTool) Name() string        { return "kb_search" }
func (KBSearchTool) Description() string { return "Search the scenario knowledge base for relevant passages." }

func (KBSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"scenario": {"type": "string"},
			"top_k": {"type": "integer"}
		},
		"required": ["query"]
	}`)
}

type kbSearchArgs struct {
	Query    string `json:"query"`
	Scenario string `json:"scenario"`
	TopK     int    `json:"top_k"`
}

func (KBSearchTool) Execute(ctx *Context, args json.RawMessage) (json.RawMessage, error) {
	var in kbSearchArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errs.Wrap(errs.KindTool, err, "kb_search: decode arguments")
	}
	if in.Query == "" {
		return nil, errs.New(errs.KindTool, "kb_search missing query")
	}
	scenario := in.Scenario
	if scenario == "" {
		scenario = "labor"
	}
	topK := in.TopK
	if topK == 0 {
		topK = 5
	}

	if ctx.Retriever == nil {
		return nil, errs.New(errs.KindInvalidState, "kb_search: no retriever configured")
	}
	results, err := ctx.Retriever.Search(in.Query, scenario, topK)
	if err != nil {
		return nil, err
	}
	return json.Marshal(results)
}
