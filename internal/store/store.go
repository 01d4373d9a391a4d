// Package store implements the durable session/message/setting store
// described in §4.1 of the spec. It follows the teacher's
// interface-plus-two-implementations shape (see the reference repo's
// internal/sessions.Store and internal/storage's memory/Cockroach
// pair): a Store interface, a MemoryStore for tests, and a SQLite
// implementation for embedded single-process deployments.
package store

import (
	"context"
	"strconv"

	"github.com/legaladvisor/engine/pkg/models"
)

// ListOptions bounds a List query.
type ListOptions struct {
	Limit  int
	Offset int
}

// Store is the single-writer durable store every other component
// depends on. All operations are synchronous; concurrent callers see a
// consistent order (I1–I4 in the spec's §3).
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, scenario, title string) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error)
	UpdateSessionTitle(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error

	// Messages
	CreateMessage(ctx context.Context, sessionID string, role models.Role, content string, phase models.Phase, toolCallsJSON string) (*models.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Tool permissions
	GetToolPermission(ctx context.Context, toolName string) (models.Permission, error)
	SetToolPermission(ctx context.Context, toolName string, permission models.Permission) error

	// Logs
	AppendLog(ctx context.Context, level, message, sessionID string) (*models.LogEntry, error)
	ListLogs(ctx context.Context, limit int) ([]*models.LogEntry, error)

	// Close releases any underlying resources.
	Close() error
}

// defaultPermission resolves the per-tool default from §3's
// ToolPermission model: cite, summarize_facts, check_safety, and
// suggest_escalation default to allow; everything else defaults to ask.
func defaultPermission(toolName string) models.Permission {
	switch toolName {
	case "cite", "summarize_facts", "check_safety", "suggest_escalation":
		return models.PermissionAllow
	default:
		return models.PermissionAsk
	}
}

// IntakeSettingKeys builds the setting-key family the worker uses to
// track intake progress for one session, per §3.
type IntakeSettingKeys struct {
	Idx    string
	Done   string
	Answer func(i int) string
}

// IntakeKeys returns the namespaced setting keys for sessionID.
func IntakeKeys(sessionID string) IntakeSettingKeys {
	return IntakeSettingKeys{
		Idx:  "intake:" + sessionID + ":idx",
		Done: "intake:" + sessionID + ":done",
		Answer: func(i int) string {
			return "intake:" + sessionID + ":answer:" + strconv.Itoa(i)
		},
	}
}
