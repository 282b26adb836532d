package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/onnwee/livecue/action"
	"github.com/onnwee/livecue/chat"
	"github.com/onnwee/livecue/config"
	"github.com/onnwee/livecue/db"
	"github.com/onnwee/livecue/resolver"
	"github.com/onnwee/livecue/telemetry"
)

// Admin command surface.
const (
	ReloadCommand = "!refreshconfig"
	EnablePrefix  = "!enable "
	DisablePrefix = "!disable "
	CommandPrefix = "!"
)

// ErrUnknownExpression is returned when an enable/disable names no declared expression.
var ErrUnknownExpression = errors.New("unknown expression")

// Outcomes recorded in metrics and the audit trail.
const (
	OutcomeOK            = "ok"
	OutcomeUnknownKey    = "unknown_key"
	OutcomeLoadFailed    = "load_failed"
	OutcomeResolveFailed = "resolve_failed"
	OutcomeUnchanged     = "unchanged"
	OutcomeSwitched      = "switched"
	OutcomeSwitchFailed  = "switch_failed"
	OutcomeTriggered     = "triggered"
	OutcomeCooldown      = "cooldown"
)

const (
	defaultErrorBackoff = time.Second
	defaultAuditTimeout = 2 * time.Second
)

// Recorder persists audited commands (db.Store implements it).
type Recorder interface {
	RecordCommand(ctx context.Context, ev db.CommandEvent) error
}

// Options carries the Dispatcher's collaborators.
type Options struct {
	Source   config.Source
	Resolver resolver.SessionResolver
	Slot     *chat.Slot
	Executor action.Executor
	// Recorder is optional.
	Recorder Recorder
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// ErrorBackoff is the pause after a failed batch fetch.
	ErrorBackoff time.Duration
	// AuditTimeout bounds each Recorder write (default 2s).
	AuditTimeout time.Duration
}

// Dispatcher is the chat event loop.
type Dispatcher struct {
	source       config.Source
	resolver     resolver.SessionResolver
	slot         *chat.Slot
	exec         action.Executor
	rec          Recorder
	clock        clockwork.Clock
	errorBackoff time.Duration
	auditTimeout time.Duration

	// mu guards the fields below; it is never held across network calls or actions.
	mu        sync.Mutex
	actions   *config.Actions
	sessionID string
	ledger    *Ledger
}

// New returns a Dispatcher that starts from actions attached to sessionID.
func New(actions *config.Actions, sessionID string, o Options) *Dispatcher {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = defaultErrorBackoff
	}
	if o.AuditTimeout <= 0 {
		o.AuditTimeout = defaultAuditTimeout
	}
	return &Dispatcher{
		source:       o.Source,
		resolver:     o.Resolver,
		slot:         o.Slot,
		exec:         o.Executor,
		rec:          o.Recorder,
		clock:        o.Clock,
		errorBackoff: o.ErrorBackoff,
		auditTimeout: o.AuditTimeout,
		actions:      actions,
		sessionID:    sessionID,
		ledger:       NewLedger(),
	}
}

func (d *Dispatcher) logger(ctx context.Context) *slog.Logger {
	return telemetry.LoggerWithCorr(ctx).With(slog.String("component", "dispatcher"))
}

// Run consumes batches until the stream reports closed or ctx is done. Fetch errors are
// logged and retried after a pause; they never end the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	log := d.logger(ctx)
	for d.slot.IsOpen() {
		telemetry.SetStreamOpen(true)
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := d.slot.NextBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !d.slot.IsOpen() {
				break
			}
			log.Warn("chat batch failed", slog.Any("err", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.clock.After(d.errorBackoff):
			}
			continue
		}
		if len(batch) == 0 {
			continue
		}
		bctx := telemetry.WithCorrelation(ctx, uuid.NewString())
		telemetry.IncChatEvents(len(batch))
		for _, ev := range batch {
			d.Handle(bctx, ev)
		}
	}
	telemetry.SetStreamOpen(false)
	log.Info("chat stream closed; dispatcher stopped", slog.String("video_id", d.SessionID()))
	return nil
}

// Handle processes one event: reload, then enable/disable, then viewer commands.
func (d *Dispatcher) Handle(ctx context.Context, ev chat.Event) {
	msg := strings.ToLower(strings.TrimSpace(ev.Message))
	if !strings.HasPrefix(msg, CommandPrefix) {
		return
	}
	log := d.logger(ctx).With(slog.String("user", ev.Author))
	trusted := IsTrusted(ev.Author, d.current())

	switch {
	case msg == ReloadCommand:
		if trusted {
			d.reload(ctx, log, ev, msg)
			return
		}
		log.Debug("ignoring admin command from untrusted user", slog.String("message", msg))
	case strings.HasPrefix(msg, EnablePrefix), strings.HasPrefix(msg, DisablePrefix):
		if trusted {
			d.toggle(ctx, log, ev, msg)
			return
		}
		log.Debug("ignoring admin command from untrusted user", slog.String("message", msg))
	}
	d.viewer(ctx, log, ev, msg)
}

func (d *Dispatcher) current() *config.Actions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.actions
}

func (d *Dispatcher) reload(ctx context.Context, log *slog.Logger, ev chat.Event, msg string) {
	ctx, span := telemetry.StartSpan(ctx, "command.Reload", telemetry.SessionAttr(d.SessionID()))
	outcome := d.doReload(ctx, log, ev.Author)
	span.SetAttributes(telemetry.OutcomeAttr(outcome))
	span.End()
	telemetry.IncAdmin("refreshconfig", outcome)
	d.record(ctx, ev, msg, db.KindReload, "", outcome)
}

func (d *Dispatcher) doReload(ctx context.Context, log *slog.Logger, user string) string {
	next, err := d.source.Load()
	if err != nil {
		log.Error("config reload failed; keeping current config", slog.Any("err", err))
		return OutcomeLoadFailed
	}
	d.mu.Lock()
	d.actions = next
	prev := d.sessionID
	d.mu.Unlock()
	log.Info("config reloaded", slog.Int("expressions", len(next.Expressions)))

	id, err := d.resolver.Resolve(ctx, next)
	if err != nil {
		log.Warn("after reload, could not resolve live session; keeping current stream", slog.String("video_id", prev), slog.Any("err", err))
		return OutcomeResolveFailed
	}
	if id == prev {
		return OutcomeUnchanged
	}
	log.Info("new live session detected; reconnecting", slog.String("video_id", id), slog.String("previous", prev))
	if err := d.slot.Replace(ctx, id, next); err != nil {
		log.Error("reconnect failed; keeping current stream", slog.String("video_id", prev), slog.Any("err", err))
		return OutcomeSwitchFailed
	}
	d.mu.Lock()
	d.sessionID = id
	d.mu.Unlock()
	telemetry.IncStreamSwitch()
	return OutcomeSwitched
}

func (d *Dispatcher) toggle(ctx context.Context, log *slog.Logger, ev chat.Event, msg string) {
	kind, prefix, enabled := db.KindEnable, EnablePrefix, true
	if strings.HasPrefix(msg, DisablePrefix) {
		kind, prefix, enabled = db.KindDisable, DisablePrefix, false
	}
	key := strings.TrimSpace(strings.TrimPrefix(msg, prefix))

	outcome := OutcomeOK
	name, err := d.SetEnabled(key, enabled)
	if err != nil {
		outcome = OutcomeUnknownKey
		log.Warn("tried to "+kind+" unknown expression", slog.String("expression", key))
	} else {
		log.Info("expression "+kind+"d", slog.String("expression", name))
		key = name
	}
	telemetry.IncAdmin(kind, outcome)
	d.record(ctx, ev, msg, kind, key, outcome)
}

// SetEnabled flips an expression's flag in the current snapshot and returns its declared
// name. The change lasts until the next reload.
func (d *Dispatcher) SetEnabled(key string, enabled bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.actions.Expression(key)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownExpression, key)
	}
	e.Enabled = enabled
	return e.Name, nil
}

// match returns the first enabled expression whose command equals msg, in declaration order.
func (d *Dispatcher) match(msg string) (name, key string, allowed, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.actions.Expressions {
		if !e.Enabled || msg != CommandPrefix+strings.ToLower(e.Command) {
			continue
		}
		allowed = d.ledger.TryTrigger(e.Name, d.actions.CooldownSeconds, d.clock.Now())
		return e.Name, e.Key, allowed, true
	}
	return "", "", false, false
}

func (d *Dispatcher) viewer(ctx context.Context, log *slog.Logger, ev chat.Event, msg string) {
	name, key, allowed, ok := d.match(msg)
	if !ok {
		return
	}
	if !allowed {
		telemetry.IncCooldown(name)
		log.Info("cooldown active", slog.String("expression", name))
		d.record(ctx, ev, msg, db.KindTrigger, name, OutcomeCooldown)
		return
	}
	tctx, span := telemetry.StartSpan(ctx, "command.Trigger", telemetry.ExpressionAttr(name))
	d.exec.Trigger(tctx, key)
	span.End()
	telemetry.IncTrigger(name)
	log.Info("triggered expression", slog.String("expression", name), slog.String("key", key))
	d.record(ctx, ev, msg, db.KindTrigger, name, OutcomeTriggered)
}

func (d *Dispatcher) record(ctx context.Context, ev chat.Event, msg, kind, expression, outcome string) {
	if d.rec == nil {
		return
	}
	// The write runs on the event loop, so a stuck database must not stall dispatching.
	wctx, cancel := context.WithTimeout(ctx, d.auditTimeout)
	defer cancel()
	err := d.rec.RecordCommand(wctx, db.CommandEvent{
		SessionID:  d.SessionID(),
		Username:   ev.Author,
		Message:    msg,
		Kind:       kind,
		Expression: expression,
		Outcome:    outcome,
		CreatedAt:  d.clock.Now(),
	})
	if err != nil {
		d.logger(ctx).Warn("audit write failed", slog.Any("err", err))
	}
}

// SessionID returns the session the dispatcher is attached to.
func (d *Dispatcher) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// ExpressionState is a point-in-time view of one expression.
type ExpressionState struct {
	Name          string     `json:"name"`
	Command       string     `json:"command"`
	Key           string     `json:"key"`
	Enabled       bool       `json:"enabled"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
}

// State is a point-in-time view of the dispatcher for the status endpoint.
type State struct {
	SessionID       string            `json:"video_id"`
	Platform        string            `json:"platform"`
	CooldownSeconds float64           `json:"cooldown_seconds"`
	TrustedUsers    int               `json:"trusted_users"`
	Expressions     []ExpressionState `json:"expressions"`
}

// Snapshot copies the current state.
func (d *Dispatcher) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := State{
		SessionID:       d.sessionID,
		Platform:        d.actions.Platform,
		CooldownSeconds: d.actions.CooldownSeconds,
		TrustedUsers:    len(d.actions.TrustedUsers),
		Expressions:     make([]ExpressionState, 0, len(d.actions.Expressions)),
	}
	for _, e := range d.actions.Expressions {
		es := ExpressionState{Name: e.Name, Command: e.Command, Key: e.Key, Enabled: e.Enabled}
		if t, ok := d.ledger.Last(e.Name); ok {
			es.LastTriggered = &t
		}
		s.Expressions = append(s.Expressions, es)
	}
	return s
}
