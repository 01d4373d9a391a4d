package engine

import (
	"github.com/legaladvisor/engine/internal/retriever"
	"github.com/legaladvisor/engine/internal/safety"
	"github.com/legaladvisor/engine/internal/tools"
)

// retrieverAdapter narrows *retriever.Retriever to the tools.Retriever
// interface, converting pkg/models.SearchResult to the tools package's
// locally declared SearchResult so internal/tools never has to import
// pkg/models or internal/retriever.
type retrieverAdapter struct {
	r *retriever.Retriever
}

func (a retrieverAdapter) Search(query, scenario string, topK int) ([]tools.SearchResult, error) {
	results, err := a.r.Search(query, scenario, topK)
	if err != nil {
		return nil, err
	}
	out := make([]tools.SearchResult, len(results))
	for i, r := range results {
		out[i] = tools.SearchResult{
			FilePath:  r.FilePath,
			Title:     r.Title,
			Snippet:   r.Snippet,
			LineStart: r.LineStart,
			LineEnd:   r.LineEnd,
			Score:     r.Score,
		}
	}
	return out, nil
}

func (a retrieverAdapter) ReadFile(path string) (string, error) {
	return a.r.ReadFile(path)
}

// safetyAdapter narrows *safety.Checker to the tools.SafetyChecker
// interface, for the same reason as retrieverAdapter.
type safetyAdapter struct {
	c *safety.Checker
}

func (a safetyAdapter) Check(text string) tools.SafetyResult {
	result := a.c.Check(text)
	issues := make([]tools.SafetyIssue, len(result.Issues))
	for i, iss := range result.Issues {
		issues[i] = tools.SafetyIssue{Rule: iss.Rule, Matched: iss.Matched, Severity: iss.Severity}
	}
	return tools.SafetyResult{
		ModifiedContent: result.ModifiedContent,
		Issues:          issues,
		HasCritical:     result.HasCritical,
	}
}
