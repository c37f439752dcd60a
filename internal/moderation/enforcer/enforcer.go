package enforcer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/moderation/notify"
)

const tracerName = "github.com/iamwavecut/ngguard/internal/moderation/enforcer"

type (
	Scanner interface {
		Scan(ctx context.Context, chatID int64, text string) (moderation.Verdict, error)
	}

	LinkFinder interface {
		FindLink(text string) string
	}

	FloodChecker interface {
		Check(ev moderation.Event, strength moderation.Strength) (bool, moderation.Reason)
	}

	Ledger interface {
		RecordViolation(ctx context.Context, userID, chatID int64) (int, error)
	}

	Platform interface {
		DeleteMessage(ctx context.Context, chatID int64, messageID int) error
		RestrictUser(ctx context.Context, chatID, userID int64, until time.Time) error
	}

	Notifier interface {
		Notify(ctx context.Context, dest notify.Destination, text string) (moderation.MessageRef, bool)
	}

	Cleanup interface {
		ScheduleDelete(ref moderation.MessageRef, after time.Duration)
	}

	AuditLog interface {
		AppendModerationLog(ctx context.Context, entry *db.ModerationLog) error
	}

	Recorder interface {
		RecordViolation(reason string)
		RecordAction(action, result string)
		StartMessageProcessing() func(status string)
	}

	Deps struct {
		Scanner  Scanner
		Links    LinkFinder
		Flood    FloodChecker
		Ledger   Ledger
		Platform Platform
		Notifier Notifier
		Cleanup  Cleanup
		Audit    AuditLog
		Metrics  Recorder
	}

	// Outcome describes what happened to one message. Err is set only when
	// enforcement stopped early.
	Outcome struct {
		IncidentID string
		Verdict    moderation.Verdict
		Strikes    int
		Actions    []Action
		Deleted    bool
		Muted      bool
		Notified   bool
		Err        error
	}

	Enforcer struct {
		deps   Deps
		now    func() time.Time
		tracer trace.Tracer
	}
)

var ErrLedger = errors.New("strike ledger unavailable")

func New(deps Deps) *Enforcer {
	return &Enforcer{
		deps:   deps,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
}

// WithClock replaces the time source used for mute deadlines.
func (e *Enforcer) WithClock(now func() time.Time) *Enforcer {
	e.now = now
	return e
}

func (e *Enforcer) getLogEntry() *log.Entry {
	return log.WithField("object", "Enforcer")
}

// Handle runs detect, suppress, escalate-check, act and cleanup for one
// message. It never panics and never blocks on notice cleanup.
func (e *Enforcer) Handle(ctx context.Context, ev moderation.Event, policy Policy) (out *Outcome) {
	out = &Outcome{}
	ctx, span := e.tracer.Start(ctx, "enforce", trace.WithAttributes(
		attribute.Int64("chat_id", ev.ChatID),
		attribute.Int64("user_id", ev.UserID),
	))
	finish := e.startProcessing()
	entry := e.getLogEntry().WithField("chat_id", ev.ChatID).WithField("user_id", ev.UserID)

	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", fmt.Sprint(r)).Error("enforcement panicked")
			out.Err = fmt.Errorf("enforcement panicked: %v", r)
		}
		status := "clean"
		switch {
		case out.Err != nil:
			status = "error"
			span.SetStatus(codes.Error, out.Err.Error())
		case out.Verdict.Violation:
			status = "violation"
			span.SetAttributes(attribute.String("reason", string(out.Verdict.Reason)))
		}
		finish(status)
		span.End()
	}()

	out.Verdict = e.detect(ctx, ev, policy)
	if !out.Verdict.Violation {
		return out
	}
	out.IncidentID = uuid.New()
	entry = entry.WithField("incident_id", out.IncidentID).WithField("reason", out.Verdict.Reason)
	entry.WithField("match", out.Verdict.Match).Info("violation detected")
	e.recordViolation(string(out.Verdict.Reason))

	suppress := Suppress(ev)
	out.Actions = append(out.Actions, suppress)
	if _, ok := suppress.(DeleteAction); ok {
		out.Deleted = e.apply(ctx, suppress, entry).ok
	}

	strikes, err := e.deps.Ledger.RecordViolation(ctx, ev.UserID, ev.ChatID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("cant record strike, skipping escalation")
		out.Err = fmt.Errorf("%w: %w", ErrLedger, err)
		e.audit(ctx, ev, out, db.ActionLedgerFailed)
		return out
	}
	out.Strikes = strikes

	decided := Decide(ev, out.Verdict, strikes, policy, e.now(), out.IncidentID)
	out.Actions = append(out.Actions, decided...)
	for _, action := range decided {
		res := e.apply(ctx, action, entry)
		switch a := action.(type) {
		case RestrictAction:
			out.Muted = res.ok
		case NotifyAction:
			if res.ok {
				out.Notified = true
				e.deps.Cleanup.ScheduleDelete(res.ref, a.TTL)
			}
		}
	}

	action := db.ActionWarned
	if policy.Escalates(strikes) {
		action = db.ActionMuted
	}
	e.audit(ctx, ev, out, action)
	return out
}

func (e *Enforcer) detect(ctx context.Context, ev moderation.Event, policy Policy) moderation.Verdict {
	if policy.ContentChecks && ev.Text != "" {
		verdict, err := e.deps.Scanner.Scan(ctx, ev.ChatID, ev.Text)
		if err != nil {
			e.getLogEntry().WithField("error", err.Error()).Warn("scan aborted, passing message")
		} else if verdict.Violation {
			return verdict
		}
	}
	if policy.Quarantined && e.deps.Links != nil && ev.Text != "" {
		if link := e.deps.Links.FindLink(ev.Text); link != "" {
			return moderation.Violation(moderation.ReasonUnauthorizedLink, link)
		}
	}
	if policy.FloodChecks && e.deps.Flood != nil {
		strength := policy.Strength
		if policy.Quarantined {
			strength = moderation.StrengthStrict
		}
		if flooding, reason := e.deps.Flood.Check(ev, strength); flooding {
			return moderation.Violation(reason, "")
		}
	}
	return moderation.Clean()
}

type applied struct {
	ok  bool
	ref moderation.MessageRef
}

// apply performs one platform side effect. Failures are logged and never
// stop the remaining actions.
func (e *Enforcer) apply(ctx context.Context, action Action, entry *log.Entry) applied {
	switch a := action.(type) {
	case DeleteAction:
		err := e.deps.Platform.DeleteMessage(ctx, a.Message.ChatID, a.Message.MessageID)
		if err != nil && !errors.Is(err, moderation.ErrMessageGone) {
			entry.WithField("error", err.Error()).Warn("cant delete offending message")
			e.recordAction("delete", "failed")
			return applied{}
		}
		e.recordAction("delete", "ok")
		return applied{ok: true}

	case RestrictAction:
		if err := e.deps.Platform.RestrictUser(ctx, a.ChatID, a.UserID, a.Until); err != nil {
			entry.WithField("error", err.Error()).Warn("cant restrict user")
			e.recordAction("restrict", "failed")
			return applied{}
		}
		entry.WithField("until", a.Until).Info("user muted")
		e.recordAction("restrict", "ok")
		return applied{ok: true}

	case NotifyAction:
		kind := "notice"
		if a.Admin {
			kind = "admin_alert"
		}
		ref, ok := e.deps.Notifier.Notify(ctx, a.Destination, a.Text)
		if !ok {
			e.recordAction(kind, "failed")
			return applied{}
		}
		e.recordAction(kind, "ok")
		return applied{ok: true, ref: ref}
	}
	return applied{ok: true}
}

func (e *Enforcer) audit(ctx context.Context, ev moderation.Event, out *Outcome, action string) {
	if e.deps.Audit == nil {
		return
	}
	err := e.deps.Audit.AppendModerationLog(ctx, &db.ModerationLog{
		IncidentID:  out.IncidentID,
		ChatID:      ev.ChatID,
		UserID:      ev.UserID,
		Username:    ev.UserName,
		Action:      action,
		Reason:      string(out.Verdict.Reason),
		StrikeCount: out.Strikes,
		CreatedAt:   e.now().Unix(),
	})
	if err != nil {
		e.getLogEntry().WithField("error", err.Error()).Warn("cant write moderation log")
	}
}

func (e *Enforcer) recordViolation(reason string) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordViolation(reason)
	}
}

func (e *Enforcer) recordAction(action, result string) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordAction(action, result)
	}
}

func (e *Enforcer) startProcessing() func(string) {
	if e.deps.Metrics == nil {
		return func(string) {}
	}
	return e.deps.Metrics.StartMessageProcessing()
}
