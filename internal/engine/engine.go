// Package engine wires the Store, Retriever, SafetyChecker,
// ToolRegistry, EventBus, PermissionGate, SessionScheduler, and
// AgentWorker into the single facade a host process embeds, per §6 of
// the spec. It is the adapter layer the lower packages' doc comments
// point back to: the place generic interfaces (tools.Retriever,
// tools.SafetyChecker, scheduler.Worker, worker.EventBus, ...) get
// bound to concrete implementations, and the place cross-cutting
// concerns — metrics, logging, config-driven permission seeding — get
// attached without leaking into any single component.
//
// Grounded on the teacher's internal/gateway.Server: one struct holding
// every subsystem, a constructor that builds them bottom-up, and
// thin pass-through methods that are the host's only contact surface.
package engine

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/legaladvisor/engine/internal/config"
	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/internal/events"
	"github.com/legaladvisor/engine/internal/obs"
	"github.com/legaladvisor/engine/internal/permission"
	"github.com/legaladvisor/engine/internal/retriever"
	"github.com/legaladvisor/engine/internal/safety"
	"github.com/legaladvisor/engine/internal/scheduler"
	"github.com/legaladvisor/engine/internal/store"
	"github.com/legaladvisor/engine/internal/tools"
	"github.com/legaladvisor/engine/internal/worker"
	"github.com/legaladvisor/engine/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// regenerateReportPrompt is the fixed prompt regenerate_report feeds
// back into send_message, per §6.
const regenerateReportPrompt = "请基于已收集的事实重新生成一版完整法律咨询报告。"

// Engine is the assembled Agent Orchestrator: every host-facing
// operation in §6 is a method on it.
type Engine struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *obs.Metrics
	metricsReg *prometheus.Registry

	store     store.Store
	bus       *events.Bus
	gate      *permission.Gate
	registry  *tools.Registry
	retriever *retriever.Retriever
	safety    *safety.Checker
	scheduler *scheduler.Scheduler
}

// New assembles an Engine from cfg. It opens the configured store
// (SQLite, or an in-process MemoryStore for ":memory:"), builds the
// retriever and safety checker, registers the seven built-in tools,
// seeds any configured permission defaults, and wires the permission
// gate, scheduler, and worker on top.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	logger := obs.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	st, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	var metrics *obs.Metrics
	var metricsReg *prometheus.Registry
	if cfg.Metrics.Enabled {
		metricsReg = prometheus.NewRegistry()
		metrics = obs.NewMetrics(metricsReg)
	}

	bus := events.NewBus()
	var emitter worker.EventBus = bus
	var schedBus scheduler.EventBus = bus
	var gateBus permission.EventBus = bus
	if metrics != nil {
		mb := newMetricsBus(bus, metrics)
		emitter, schedBus, gateBus = mb, mb, mb
	}

	retr := retriever.New(retriever.Config{KBRoot: cfg.Retriever.KBRoot, WindowLines: cfg.Retriever.WindowLines})
	safetyChecker := safety.New()

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		return nil, err
	}
	var toolRunner worker.ToolRunner = registry
	if metrics != nil {
		toolRunner = newInstrumentedRegistry(registry, metrics)
	}

	if err := seedPermissionDefaults(context.Background(), st, cfg.Permissions.Defaults); err != nil {
		return nil, err
	}

	gate := permission.New(st, gateBus, config.PermissionPollInterval)

	w := worker.New(st, emitter, toolRunner, gate, retrieverAdapter{retr}, safetyAdapter{safetyChecker}, cfg.Intake.MaxIterations)
	sched := scheduler.New(schedBus, st, w)

	return &Engine{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		metricsReg: metricsReg,
		store:      st,
		bus:       bus,
		gate:      gate,
		registry:  registry,
		retriever: retr,
		safety:    safetyChecker,
		scheduler: sched,
	}, nil
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	if cfg.Path == "" || cfg.Path == ":memory:" {
		return store.NewMemoryStore(), nil
	}
	return store.Open(cfg.Path, cfg.MaxOpenConns)
}

func seedPermissionDefaults(ctx context.Context, st store.Store, defaults map[string]string) error {
	for tool, perm := range defaults {
		p := models.Permission(strings.ToLower(perm))
		switch p {
		case models.PermissionAllow, models.PermissionAsk, models.PermissionDeny:
		default:
			return errs.Newf(errs.KindConfig, "invalid default permission %q for tool %s", perm, tool)
		}
		if err := st.SetToolPermission(ctx, tool, p); err != nil {
			return err
		}
	}
	return nil
}

// Logger exposes the engine's structured logger, for hosts that want
// to attach their own handlers or just log alongside it.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// MetricsGatherer exposes the engine's private Prometheus registry so
// a host can mount its own /metrics endpoint; nil if metrics are
// disabled in config. Scraping itself is the host's concern, not this
// core's.
func (e *Engine) MetricsGatherer() prometheus.Gatherer {
	if e.metricsReg == nil {
		return nil
	}
	return e.metricsReg
}

// Close releases the underlying store's resources.
func (e *Engine) Close() error { return e.store.Close() }

// --- Sessions ---------------------------------------------------------

func (e *Engine) CreateSession(ctx context.Context, scenario, title string) (*models.Session, error) {
	sess, err := e.store.CreateSession(ctx, scenario, title)
	if err != nil {
		return nil, err
	}
	e.bus.Emit(models.Event{Kind: models.EventSessionCreated, Payload: map[string]any{"session_id": sess.ID}})
	return sess, nil
}

func (e *Engine) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return e.store.ListSessions(ctx, store.ListOptions{})
}

func (e *Engine) UpdateSessionTitle(ctx context.Context, id, title string) error {
	return e.store.UpdateSessionTitle(ctx, id, title)
}

func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	return e.store.DeleteSession(ctx, id)
}

// --- Messages -----------------------------------------------------------

func (e *Engine) CreateMessage(ctx context.Context, sessionID string, role models.Role, content string, phase models.Phase, toolCallsJSON string) (*models.Message, error) {
	msg, err := e.store.CreateMessage(ctx, sessionID, role, content, phase, toolCallsJSON)
	if err != nil {
		return nil, err
	}
	e.bus.Emit(models.Event{Kind: models.EventMessageCreated, Payload: map[string]any{"message_id": msg.ID, "session_id": sessionID}})
	return msg, nil
}

func (e *Engine) GetMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	return e.store.ListMessages(ctx, sessionID)
}

// --- Settings & permissions ---------------------------------------------

func (e *Engine) GetSetting(ctx context.Context, key string) (string, error) {
	return e.store.GetSetting(ctx, key)
}

func (e *Engine) SetSetting(ctx context.Context, key, value string) error {
	return e.store.SetSetting(ctx, key, value)
}

func (e *Engine) GetToolPermission(ctx context.Context, name string) (models.Permission, error) {
	return e.store.GetToolPermission(ctx, name)
}

func (e *Engine) SetToolPermission(ctx context.Context, name string, p models.Permission) error {
	return e.store.SetToolPermission(ctx, name, p)
}

// --- Logs -----------------------------------------------------------------

func (e *Engine) AppendLog(ctx context.Context, level, message, sessionID string) (*models.LogEntry, error) {
	return e.store.AppendLog(ctx, level, message, sessionID)
}

func (e *Engine) ListLogs(ctx context.Context, limit int) ([]*models.LogEntry, error) {
	return e.store.ListLogs(ctx, limit)
}

// --- Events -----------------------------------------------------------------

// SubscribeEvents registers listener for every event emitted on the
// bus and emits a synthetic "subscribed" event immediately, mirroring
// the teacher's stream-subscribe handshake.
func (e *Engine) SubscribeEvents(listener events.Listener) int {
	id := e.bus.Subscribe(listener)
	e.bus.Emit(models.Event{Kind: models.EventSubscribed, Payload: map[string]any{"sub_id": id}})
	return id
}

func (e *Engine) UnsubscribeEvents(subID int) error {
	return e.bus.Unsubscribe(subID)
}

// --- Agent turns -----------------------------------------------------------

func (e *Engine) SendMessage(ctx context.Context, sessionID, content string) (string, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return e.scheduler.SendMessage(ctx, sessionID, sess.Scenario, content)
}

func (e *Engine) CancelAgentTask(taskID string) error {
	return e.scheduler.Cancel(taskID)
}

func (e *Engine) RespondToolCall(requestID string, resp permission.Response) error {
	return e.gate.Respond(requestID, resp)
}

// RegenerateReport emits report_regenerating and re-runs send_message
// with the fixed re-draft prompt, per §6.
func (e *Engine) RegenerateReport(ctx context.Context, sessionID string) (string, error) {
	e.bus.Emit(models.Event{Kind: models.EventReportRegenerating, Payload: map[string]any{"session_id": sessionID}})
	return e.SendMessage(ctx, sessionID, regenerateReportPrompt)
}

// --- Reports -----------------------------------------------------------

const (
	headingFacts      = "【事实摘要】"
	headingDisclaimer = "【免责声明】"
)

// GenerateReport returns the latest review-phase assistant message for
// sessionID, falling back per §6/Open Question (b) to the most recent
// assistant message containing both the facts-summary and disclaimer
// headings, conservatively matching any such message regardless of
// whether it came from a completed review.
func (e *Engine) GenerateReport(ctx context.Context, sessionID string) (string, error) {
	messages, err := e.store.ListMessages(ctx, sessionID)
	if err != nil {
		return "", err
	}

	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == models.RoleAssistant && m.Phase == models.PhaseReview {
			return m.Content, nil
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != models.RoleAssistant {
			continue
		}
		if strings.Contains(m.Content, headingFacts) && strings.Contains(m.Content, headingDisclaimer) {
			return m.Content, nil
		}
	}
	return "", errs.Newf(errs.KindNotFound, "no report available for session %s", sessionID)
}

// ExportReportMarkdown writes the session's generated report to path as
// UTF-8 markdown bytes.
func (e *Engine) ExportReportMarkdown(ctx context.Context, sessionID, path string) error {
	report, err := e.GenerateReport(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return errs.Wrap(errs.KindStorage, err, "export_report_markdown: write "+path)
	}
	return nil
}
