package enforcer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/moderation"
	"github.com/iamwavecut/ngguard/internal/moderation/notify"
)

type stubScanner struct {
	verdict moderation.Verdict
	err     error
}

func (s stubScanner) Scan(context.Context, int64, string) (moderation.Verdict, error) {
	return s.verdict, s.err
}

type stubFlood struct {
	flooding bool
	calls    int
	strength moderation.Strength
}

func (f *stubFlood) Check(_ moderation.Event, strength moderation.Strength) (bool, moderation.Reason) {
	f.calls++
	f.strength = strength
	if f.flooding {
		return true, moderation.ReasonFlood
	}
	return false, moderation.ReasonNone
}

type stubLinks struct {
	link string
}

func (l stubLinks) FindLink(string) string {
	return l.link
}

type memoryLedger struct {
	mu     sync.Mutex
	counts map[[2]int64]int
	err    error
}

func (l *memoryLedger) RecordViolation(_ context.Context, userID, chatID int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	key := [2]int64{userID, chatID}
	l.counts[key]++
	return l.counts[key], nil
}

type restriction struct {
	chatID, userID int64
	until          time.Time
}

type stubPlatform struct {
	mu          sync.Mutex
	deleteErr   error
	restrictErr error
	deleted     []moderation.MessageRef
	restricted  []restriction
}

func (p *stubPlatform) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, moderation.MessageRef{ChatID: chatID, MessageID: messageID})
	return p.deleteErr
}

func (p *stubPlatform) RestrictUser(_ context.Context, chatID, userID int64, until time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restricted = append(p.restricted, restriction{chatID: chatID, userID: userID, until: until})
	return p.restrictErr
}

type sent struct {
	dest notify.Destination
	text string
}

type stubNotifier struct {
	mu   sync.Mutex
	fail bool
	sent []sent
}

func (n *stubNotifier) Notify(_ context.Context, dest notify.Destination, text string) (moderation.MessageRef, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{dest: dest, text: text})
	if n.fail {
		return moderation.MessageRef{}, false
	}
	return moderation.MessageRef{ChatID: dest.ChatID, MessageID: 1000 + len(n.sent)}, true
}

type scheduled struct {
	ref   moderation.MessageRef
	after time.Duration
}

type stubCleanup struct {
	mu        sync.Mutex
	scheduled []scheduled
}

func (c *stubCleanup) ScheduleDelete(ref moderation.MessageRef, after time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduled = append(c.scheduled, scheduled{ref: ref, after: after})
}

type stubAudit struct {
	mu      sync.Mutex
	entries []db.ModerationLog
	err     error
}

func (a *stubAudit) AppendModerationLog(_ context.Context, entry *db.ModerationLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *entry)
	return a.err
}

type fixture struct {
	scanner  *stubScanner
	flood    *stubFlood
	ledger   *memoryLedger
	platform *stubPlatform
	notifier *stubNotifier
	cleanup  *stubCleanup
	audit    *stubAudit
	now      time.Time
	enforcer *Enforcer
}

func newFixture(verdict moderation.Verdict) *fixture {
	f := &fixture{
		scanner:  &stubScanner{verdict: verdict},
		flood:    &stubFlood{},
		ledger:   &memoryLedger{counts: map[[2]int64]int{}},
		platform: &stubPlatform{},
		notifier: &stubNotifier{},
		cleanup:  &stubCleanup{},
		audit:    &stubAudit{},
		now:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.enforcer = New(Deps{
		Scanner:  f.scanner,
		Flood:    f.flood,
		Ledger:   f.ledger,
		Platform: f.platform,
		Notifier: f.notifier,
		Cleanup:  f.cleanup,
		Audit:    f.audit,
	}).WithClock(func() time.Time { return f.now })
	return f
}

func testPolicy() Policy {
	return Policy{
		ContentChecks:     true,
		FloodChecks:       true,
		Strength:          moderation.StrengthMedium,
		MuteThreshold:     3,
		MuteDuration:      time.Hour,
		MuteOnEveryStrike: true,
		NoticeTTL:         10 * time.Second,
		AdminAlertTTL:     time.Hour,
		AdminChatID:       -999,
		Language:          "en",
	}
}

func testEvent(messageID int) moderation.Event {
	return moderation.Event{
		ChatID:    -100,
		ChatTitle: "Campus",
		MessageID: messageID,
		UserID:    42,
		UserName:  "alice",
		Text:      "offending text",
	}
}

func TestEscalationAtThreshold(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Violation(moderation.ReasonAbuse, "ass"))
	policy := testPolicy()
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		out := f.enforcer.Handle(ctx, testEvent(i), policy)
		if out.Err != nil || out.Strikes != i || out.Muted {
			t.Fatalf("violation %d: unexpected outcome %+v", i, out)
		}
	}
	if len(f.platform.restricted) != 0 {
		t.Fatalf("restricted below threshold: %+v", f.platform.restricted)
	}
	if len(f.notifier.sent) != 2 {
		t.Fatalf("expected two notices, got %d", len(f.notifier.sent))
	}
	for _, n := range f.notifier.sent {
		if n.dest.ChatID != -100 {
			t.Fatalf("notice sent outside origin chat: %+v", n.dest)
		}
	}

	out := f.enforcer.Handle(ctx, testEvent(3), policy)
	if out.Err != nil || out.Strikes != 3 || !out.Muted || !out.Deleted || !out.Notified {
		t.Fatalf("threshold violation: unexpected outcome %+v", out)
	}
	if len(f.platform.restricted) != 1 {
		t.Fatalf("expected one restriction, got %d", len(f.platform.restricted))
	}
	r := f.platform.restricted[0]
	if r.chatID != -100 || r.userID != 42 || !r.until.Equal(f.now.Add(time.Hour)) {
		t.Fatalf("unexpected restriction %+v", r)
	}

	alert := f.notifier.sent[len(f.notifier.sent)-1]
	if alert.dest.ChatID != -999 {
		t.Fatalf("admin alert sent to %d", alert.dest.ChatID)
	}
	for _, want := range []string{"42", "abusive language", out.IncidentID, "Campus"} {
		if !strings.Contains(alert.text, want) {
			t.Fatalf("admin alert %q lacks %q", alert.text, want)
		}
	}

	if len(f.platform.deleted) != 3 {
		t.Fatalf("expected every offending message deleted, got %d", len(f.platform.deleted))
	}
	last := f.cleanup.scheduled[len(f.cleanup.scheduled)-1]
	if last.after != time.Hour {
		t.Fatalf("admin alert cleanup after %v", last.after)
	}
	if f.cleanup.scheduled[0].after != 10*time.Second {
		t.Fatalf("notice cleanup after %v", f.cleanup.scheduled[0].after)
	}

	if got := f.audit.entries[2]; got.Action != db.ActionMuted || got.StrikeCount != 3 || got.IncidentID != out.IncidentID {
		t.Fatalf("unexpected audit entry %+v", got)
	}
	if got := f.audit.entries[0]; got.Action != db.ActionWarned {
		t.Fatalf("unexpected audit entry %+v", got)
	}
}

func TestAdminAlertFallsBackToOriginChat(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Violation(moderation.ReasonBypass, "fuck"))
	policy := testPolicy()
	policy.AdminChatID = 0
	policy.MuteThreshold = 1

	ev := testEvent(1)
	ev.ThreadID = 7
	f.enforcer.Handle(context.Background(), ev, policy)
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected one alert, got %d", len(f.notifier.sent))
	}
	if dest := f.notifier.sent[0].dest; dest.ChatID != -100 || dest.ThreadID != 7 {
		t.Fatalf("unexpected alert destination %+v", dest)
	}
}

func TestLedgerFailureAbortsAfterDelete(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Violation(moderation.ReasonAbuse, "ass"))
	f.ledger.err = errors.New("disk full")

	out := f.enforcer.Handle(context.Background(), testEvent(1), testPolicy())
	if !errors.Is(out.Err, ErrLedger) {
		t.Fatalf("expected ledger error, got %v", out.Err)
	}
	if !out.Deleted || len(f.platform.deleted) != 1 {
		t.Fatalf("offending message not deleted: %+v", out)
	}
	if len(f.notifier.sent) != 0 || len(f.platform.restricted) != 0 {
		t.Fatalf("acted without a strike count")
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Action != db.ActionLedgerFailed {
		t.Fatalf("unexpected audit %+v", f.audit.entries)
	}
}

func TestPlatformFailuresAreNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Violation(moderation.ReasonUnauthorizedLink, "bit.ly"))
	f.platform.deleteErr = errors.New("not enough rights")
	f.platform.restrictErr = moderation.ErrNoPrivileges
	f.audit.err = errors.New("locked")
	policy := testPolicy()
	policy.MuteThreshold = 1

	out := f.enforcer.Handle(context.Background(), testEvent(1), policy)
	if out.Err != nil {
		t.Fatalf("platform failure surfaced: %v", out.Err)
	}
	if out.Deleted || out.Muted {
		t.Fatalf("failed actions reported as done: %+v", out)
	}
	if out.Strikes != 1 || !out.Notified {
		t.Fatalf("remaining steps skipped: %+v", out)
	}
}

func TestMessageAlreadyGoneCountsAsDeleted(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Violation(moderation.ReasonAbuse, "ass"))
	f.platform.deleteErr = moderation.ErrMessageGone

	if out := f.enforcer.Handle(context.Background(), testEvent(1), testPolicy()); !out.Deleted {
		t.Fatalf("gone message not treated as deleted")
	}
}

func TestNoticeDeliveryFailureSkipsCleanup(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Violation(moderation.ReasonAbuse, "ass"))
	f.notifier.fail = true

	out := f.enforcer.Handle(context.Background(), testEvent(1), testPolicy())
	if out.Notified || len(f.cleanup.scheduled) != 0 {
		t.Fatalf("cleanup scheduled for undelivered notice")
	}
}

func TestCleanMessageIsTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Clean())
	out := f.enforcer.Handle(context.Background(), testEvent(1), testPolicy())
	if out.Verdict.Violation || out.Err != nil || len(out.Actions) != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.flood.calls != 1 {
		t.Fatalf("flood detector not consulted for clean text")
	}
	if len(f.platform.deleted) != 0 || len(f.audit.entries) != 0 {
		t.Fatalf("side effects on a clean message")
	}
}

func TestFloodDetectedWhenContentClean(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Clean())
	f.flood.flooding = true

	out := f.enforcer.Handle(context.Background(), testEvent(1), testPolicy())
	if out.Verdict.Reason != moderation.ReasonFlood || out.Strikes != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestContentViolationSkipsFloodCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Violation(moderation.ReasonAbuse, "ass"))
	f.enforcer.Handle(context.Background(), testEvent(1), testPolicy())
	if f.flood.calls != 0 {
		t.Fatalf("flood detector consulted after content violation")
	}
}

func TestDisabledChecks(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Violation(moderation.ReasonAbuse, "ass"))
	f.flood.flooding = true
	policy := testPolicy()
	policy.ContentChecks = false
	policy.FloodChecks = false

	if out := f.enforcer.Handle(context.Background(), testEvent(1), policy); out.Verdict.Violation {
		t.Fatalf("disabled checks still flagged: %+v", out)
	}
}

func TestScanErrorPassesMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Violation(moderation.ReasonAbuse, "ass"))
	f.scanner.err = context.Canceled

	if out := f.enforcer.Handle(context.Background(), testEvent(1), testPolicy()); out.Verdict.Violation {
		t.Fatalf("scan error produced a violation: %+v", out)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	e := New(Deps{
		Scanner: stubScanner{verdict: moderation.Violation(moderation.ReasonAbuse, "ass")},
		Ledger:  &memoryLedger{counts: map[[2]int64]int{}},
	})
	out := e.Handle(context.Background(), testEvent(1), testPolicy())
	if out == nil || out.Err == nil {
		t.Fatalf("expected recovered panic to be reported, got %+v", out)
	}
}

func TestConcurrentViolationsCountEveryStrike(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Violation(moderation.ReasonAbuse, "ass"))
	policy := testPolicy()
	const n = 10

	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			f.enforcer.Handle(context.Background(), testEvent(id), policy)
		}(i)
	}
	wg.Wait()

	f.ledger.mu.Lock()
	defer f.ledger.mu.Unlock()
	if got := f.ledger.counts[[2]int64{42, -100}]; got != n {
		t.Fatalf("expected %d strikes, got %d", n, got)
	}
	// threshold 3 with mute on every strike: strikes 3..10 escalate
	if got := len(f.platform.restricted); got != n-2 {
		t.Fatalf("expected %d restrictions, got %d", n-2, got)
	}
}

func TestQuarantineBlocksLinksAndTightensFlood(t *testing.T) {
	t.Parallel()

	f := newFixture(moderation.Clean())
	f.enforcer.deps.Links = stubLinks{link: "t.me/deals"}

	out := f.enforcer.Handle(context.Background(), testEvent(1), testPolicy())
	if out.Verdict.Violation {
		t.Fatalf("link flagged outside quarantine: %+v", out.Verdict)
	}
	if f.flood.strength != moderation.StrengthMedium {
		t.Fatalf("flood strength changed outside quarantine: %s", f.flood.strength)
	}

	policy := testPolicy()
	policy.Quarantined = true
	out = f.enforcer.Handle(context.Background(), testEvent(2), policy)
	if out.Verdict.Reason != moderation.ReasonUnauthorizedLink || out.Verdict.Match != "t.me/deals" {
		t.Fatalf("link from quarantined member not flagged: %+v", out.Verdict)
	}
	if !out.Deleted || out.Strikes != 1 {
		t.Fatalf("quarantine violation not enforced: %+v", out)
	}

	f.enforcer.deps.Links = stubLinks{}
	f.enforcer.Handle(context.Background(), testEvent(3), policy)
	if f.flood.strength != moderation.StrengthStrict {
		t.Fatalf("quarantined flood strength = %s, want strict", f.flood.strength)
	}
}
