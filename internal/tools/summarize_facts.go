package tools

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/legaladvisor/engine/internal/errs"
)

// SummarizeFactsTool renders a question-answer map into a bullet list,
// grounded on the teacher's tools/facts/extract.go fact-shaping tools.
type SummarizeFactsTool struct{}

func (SummarizeFactsTool) Name() string { return "summarize_facts" }
func (SummarizeFactsTool) Description() string {
	return "Summarize collected intake facts into a bullet list."
}

func (SummarizeFactsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"facts": {"type": "object"}
		},
		"required": ["facts"]
	}`)
}

type summarizeFactsArgs struct {
	Facts map[string]any `json:"facts"`
}

type summarizeFactsResult struct {
	Summary string `json:"summary"`
}

func (SummarizeFactsTool) Execute(_ *Context, args json.RawMessage) (json.RawMessage, error) {
	var in summarizeFactsArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errs.Wrap(errs.KindTool, err, "summarize_facts: decode arguments")
	}

	keys := make([]string, 0, len(in.Facts))
	for k, v := range in.Facts {
		if _, ok := v.(string); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString("- ")
		b.WriteString(k)
		b.WriteString("：")
		b.WriteString(in.Facts[k].(string))
		b.WriteString("\n")
	}
	return json.Marshal(summarizeFactsResult{Summary: b.String()})
}
