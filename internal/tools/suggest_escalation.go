package tools

import (
	"encoding/json"
	"strings"

	"github.com/legaladvisor/engine/internal/errs"
)

// SuggestEscalationTool flags content that suggests the matter exceeds
// this engine's advisory scope and should be escalated to a human
// practitioner.
type SuggestEscalationTool struct{}

func (SuggestEscalationTool) Name() string { return "suggest_escalation" }
func (SuggestEscalationTool) Description() string {
	return "Flag content that should be escalated to a human lawyer."
}

func (SuggestEscalationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {"type": "string"}
		},
		"required": ["content"]
	}`)
}

type suggestEscalationArgs struct {
	Content string `json:"content"`
}

type suggestEscalationResult struct {
	NeedEscalation bool   `json:"need_escalation"`
	Message        string `json:"message"`
}

// escalationTriggers are the substrings from §4.4 whose presence in
// content marks the matter as beyond routine advisory scope.
var escalationTriggers = []string{"刑事", "移民", "证券", "重大财产", "坐牢", "犯罪"}

func (SuggestEscalationTool) Execute(_ *Context, args json.RawMessage) (json.RawMessage, error) {
	var in suggestEscalationArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, errs.Wrap(errs.KindTool, err, "suggest_escalation: decode arguments")
	}

	need := false
	for _, trigger := range escalationTriggers {
		if strings.Contains(in.Content, trigger) {
			need = true
			break
		}
	}

	message := "暂未发现需要立即升级至执业律师的情形，可继续按流程推进。"
	if need {
		message = "该问题涉及可能超出常规咨询范围的情形，建议尽快联系执业律师进一步处理。"
	}

	return json.Marshal(suggestEscalationResult{NeedEscalation: need, Message: message})
}
