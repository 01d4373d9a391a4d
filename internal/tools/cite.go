package tools

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/legaladvisor/engine/internal/errs"
)

// CiteTool formats a list of retrieval sources into a citation block.
type CiteTool struct{}

func (CiteTool) Name() string        { return "cite" }
func (CiteTool) Description() string { return "Format retrieval sources into a citation block." }

func (CiteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"sources": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"file_path": {"type": "string"},
						"line_start": {"type": "integer"},
						"line_end": {"type": "integer"}
					}
				}
			}
		},
		"required": ["sources"]
	}`)
}

type citeSource struct {
	FilePath  string `json:"file_path"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
}

type citeArgs struct {
	Sources []citeSource `json:"sources"`
}

type citeResult struct {
	Citations string `json:"citations"`
}

func (CiteTool) Execute(_ *Context, args json.RawMessage) (json.RawMessage, error) {
	var in citeArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errs.Wrap(errs.KindTool, err, "cite: decode arguments")
	}

	var b strings.Builder
	for _, src := range in.Sources {
		path := src.FilePath
		if path == "" {
			path = "未知文件"
		}
		b.WriteString("- ")
		b.WriteString(path)
		b.WriteString(":")
		b.WriteString(strconv.Itoa(src.LineStart))
		b.WriteString("-")
		b.WriteString(strconv.Itoa(src.LineEnd))
		b.WriteString("\n")
	}
	return json.Marshal(citeResult{Citations: b.String()})
}
