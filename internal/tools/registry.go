// Package tools implements the uniform tool-invocation protocol from
// §4.4, grounded on the teacher's internal/agent.Tool interface and
// ToolRegistry (thread-safe name-keyed map, Register/Unregister/Get/
// Execute). It adds schema-validated dispatch: every tool's Schema is
// compiled once at Register time with santhosh-tekuri/jsonschema/v5,
// the way the teacher's pkg/pluginsdk validates manifest configs
// against a compiled schema before use.
package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/legaladvisor/engine/internal/errs"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Context carries the capabilities a tool's Execute may need, per
// §4.4's "ctx grants access to Retriever and SafetyChecker".
type Context struct {
	context.Context
	Retriever    Retriever
	SafetyChecker SafetyChecker
	Scenario     string
}

// Retriever is the subset of internal/retriever.Retriever the tool
// layer depends on, kept as an interface here so tools don't import
// the concrete package; internal/engine binds it to the concrete
// retriever.
type Retriever interface {
	Search(query, scenario string, topK int) ([]SearchResult, error)
	ReadFile(path string) (string, error)
}

// SafetyChecker is the subset of internal/safety.Checker tools depend on.
type SafetyChecker interface {
	Check(text string) SafetyResult
}

// SearchResult mirrors pkg/models.SearchResult; redeclared here so this
// package's public tool signatures don't require importing pkg/models
// just for these two small interfaces. Tool implementations convert to
// and from pkg/models at the engine boundary.
type SearchResult struct {
	FilePath  string
	Title     string
	Snippet   string
	LineStart int
	LineEnd   int
	Score     float64
}

// SafetyResult mirrors pkg/models.SafetyResult.
type SafetyResult struct {
	ModifiedContent string
	Issues          []SafetyIssue
	HasCritical     bool
}

// SafetyIssue mirrors pkg/models.SafetyIssue.
type SafetyIssue struct {
	Rule     string
	Matched  string
	Severity string
}

// Tool is the uniform interface every tool implements: a name, a
// description, a JSON Schema for its arguments, and an Execute that
// receives already-validated arguments.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx *Context, args json.RawMessage) (json.RawMessage, error)
}

// Registry is a thread-safe name-keyed tool catalog with
// schema-validated dispatch.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register compiles tool's schema and adds it to the catalog,
// replacing any existing tool registered under the same name. It
// returns a Config error, and registers nothing, if the schema itself
// fails to compile — a programming error in the tool's static Schema(),
// not a runtime condition.
func (r *Registry) Register(tool Tool) error {
	compiled, err := compileSchema(tool.Name(), tool.Schema())
	if err != nil {
		return errs.Wrap(errs.KindConfig, err, "compile schema for tool "+tool.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = registered{tool: tool, schema: compiled}
	return nil
}

// Unregister removes a tool from the catalog.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// Execute validates args against the registered tool's compiled schema
// and, on success, invokes it. Unknown tool names fail NotFound;
// schema mismatches fail Tool.
func (r *Registry) Execute(ctx *Context, name string, args json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "tool %s not found", name)
	}

	if reg.schema != nil {
		if err := validateArgs(reg.schema, args); err != nil {
			return nil, errs.Wrap(errs.KindTool, err, name+" arguments invalid")
		}
	}

	return reg.tool.Execute(ctx, args)
}

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	return jsonschema.CompileString(name+".schema.json", string(schema))
}

func validateArgs(schema *jsonschema.Schema, args json.RawMessage) error {
	var decoded any
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}
