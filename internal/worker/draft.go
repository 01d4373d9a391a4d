package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/internal/store"
	"github.com/legaladvisor/engine/internal/tools"
)

const reportTemplate = `【先说结论】
从您目前提供的信息看，这类争议通常可以先走劳动仲裁路径；建议尽快把证据按时间线整理好，再按步骤推进。

【事实摘要】
我先把您提供的信息整理如下：
%s

【法律分析】
%s

【引用】
%s

【办事路径】
建议按"先准备、再提交、再跟进"的顺序推进：
%s

【风险提示】
%s

【免责声明】
1. 本报告由AI生成，仅供参考，不构成法律意见或律师建议
2. 案件具体情况可能影响法律适用，建议咨询执业律师
3. 法规可能存在时效性，请以最新颁布版本为准
4. 本报告不保证准确性、完整性或适用性
`

const processPath = `1. 准备：按时间顺序整理劳动合同、工资流水、考勤记录等证据材料。
2. 提交：向用人单位所在地或劳动合同履行地的劳动争议仲裁委员会提交仲裁申请。
3. 跟进：按仲裁委通知参加庭审，关注裁决结果与法定救济期限。`

const noRegulationsFound = "当前未检索到足够的法规条文，建议结合具体案情咨询执业律师进一步核实。"

const legalAnalysisTrailer = "以上分析基于现有公开资料整理，具体适用仍需结合个案证据判断。"

const defaultEscalationMessage = "暂未发现需要立即升级至执业律师的情形，可继续按流程推进。"

// runDraftAndReview executes the Draft and Review phases for a turn
// whose intake is already complete, per the worker's Draft/Review
// steps.
func (w *Worker) runDraftAndReview(ctx context.Context, taskID, sessionID, scenario, userContent string, cancelled func() bool) error {
	w.emitPhase(taskID, PhaseDrafting)
	if cancelled() {
		return errs.ErrCancelled
	}

	facts := w.collectFacts(ctx, sessionID, scenario)

	factsSummary, err := w.summarizeFacts(ctx, taskID, sessionID, scenario, facts, cancelled)
	if err != nil {
		return err
	}

	query := "劳动仲裁"
	if strings.TrimSpace(userContent) != "" {
		query = "劳动仲裁 " + userContent
	}
	results, err := w.kbSearch(ctx, taskID, sessionID, scenario, query, cancelled)
	if err != nil {
		return err
	}

	legalAnalysis := buildLegalAnalysis(results)

	citations, err := w.cite(ctx, taskID, sessionID, scenario, results, cancelled)
	if err != nil {
		return err
	}

	riskMessage, err := w.suggestEscalation(ctx, taskID, sessionID, scenario, userContent, cancelled)
	if err != nil {
		return err
	}

	draft := fmt.Sprintf(reportTemplate, factsSummary, legalAnalysis, citations, processPath, riskMessage)

	return w.runReview(ctx, taskID, sessionID, scenario, draft, cancelled)
}

type factAnswer struct {
	Question string
	Answer   string
}

func (w *Worker) collectFacts(ctx context.Context, sessionID, scenario string) []factAnswer {
	questions := tools.CatalogFor(scenario)
	keys := store.IntakeKeys(sessionID)

	out := make([]factAnswer, 0, len(questions))
	for i, q := range questions {
		answer, err := w.store.GetSetting(ctx, keys.Answer(i))
		if err != nil {
			answer = ""
		}
		if strings.TrimSpace(answer) == "" {
			if q.Required {
				answer = "未提供"
			} else {
				answer = "可补充"
			}
		}
		out = append(out, factAnswer{Question: q.Text, Answer: answer})
	}
	return out
}

func (w *Worker) summarizeFacts(ctx context.Context, taskID, sessionID, scenario string, facts []factAnswer, cancelled func() bool) (string, error) {
	factsMap := make(map[string]any, len(facts))
	for _, f := range facts {
		factsMap[f.Question] = f.Answer
	}
	args, _ := json.Marshal(map[string]any{"facts": factsMap})

	result, err := w.callTool(ctx, taskID, sessionID, scenario, "summarize_facts", args, cancelled)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(result, &parsed); err == nil && parsed.Summary != "" {
		return parsed.Summary, nil
	}

	var b strings.Builder
	for _, f := range facts {
		b.WriteString("- ")
		b.WriteString(f.Question)
		b.WriteString("：")
		b.WriteString(f.Answer)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (w *Worker) kbSearch(ctx context.Context, taskID, sessionID, scenario, query string, cancelled func() bool) ([]tools.SearchResult, error) {
	args, _ := json.Marshal(map[string]any{"query": query, "scenario": scenario, "top_k": 3})
	result, err := w.callTool(ctx, taskID, sessionID, scenario, "kb_search", args, cancelled)
	if err != nil {
		return nil, err
	}
	var results []tools.SearchResult
	if err := json.Unmarshal(result, &results); err != nil {
		return nil, errs.Wrap(errs.KindTool, err, "kb_search: decode result")
	}
	return results, nil
}

func buildLegalAnalysis(results []tools.SearchResult) string {
	if len(results) == 0 {
		return noRegulationsFound
	}
	limit := len(results)
	if limit > 3 {
		limit = 3
	}
	var b strings.Builder
	for i := 0; i < limit; i++ {
		r := results[i]
		snippet := strings.ReplaceAll(r.Snippet, "\n", " ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". 《")
		b.WriteString(r.Title)
		b.WriteString("》提到：")
		b.WriteString(snippet)
		b.WriteString("\n")
	}
	b.WriteString(legalAnalysisTrailer)
	return b.String()
}

func (w *Worker) cite(ctx context.Context, taskID, sessionID, scenario string, results []tools.SearchResult, cancelled func() bool) (string, error) {
	limit := len(results)
	if limit > 3 {
		limit = 3
	}
	sources := make([]map[string]any, 0, limit)
	for i := 0; i < limit; i++ {
		r := results[i]
		sources = append(sources, map[string]any{
			"file_path":  r.FilePath,
			"line_start": r.LineStart,
			"line_end":   r.LineEnd,
		})
	}
	args, _ := json.Marshal(map[string]any{"sources": sources})
	result, err := w.callTool(ctx, taskID, sessionID, scenario, "cite", args, cancelled)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Citations string `json:"citations"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return "", errs.Wrap(errs.KindTool, err, "cite: decode result")
	}
	return parsed.Citations, nil
}

func (w *Worker) suggestEscalation(ctx context.Context, taskID, sessionID, scenario, userContent string, cancelled func() bool) (string, error) {
	args, _ := json.Marshal(map[string]any{"content": userContent})
	result, err := w.callTool(ctx, taskID, sessionID, scenario, "suggest_escalation", args, cancelled)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil || parsed.Message == "" {
		return defaultEscalationMessage, nil
	}
	return parsed.Message, nil
}
