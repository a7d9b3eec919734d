// Package session orchestrates one action-resolution cycle per request:
// validate, resolve, apply, report. The session owns its character's ledger
// for the lifetime of the session and signals the persistence gateway with a
// full snapshot after every successful apply.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"idlescape.quest/internal/game/content"
	"idlescape.quest/internal/game/ledger"
	"idlescape.quest/internal/game/resolve"
	"idlescape.quest/internal/game/rules"
	"idlescape.quest/internal/game/xp"
	"idlescape.quest/internal/persistence/snapshot"
)

// Gateway is the external persistence collaborator. A full ledger snapshot
// is the unit of persistence; the core never issues partial writes.
type Gateway interface {
	LoadLedger(ctx context.Context, characterID string) (snapshot.LedgerV1, error)
	SaveLedger(ctx context.Context, characterID string, snap snapshot.LedgerV1) error
}

// Recorder receives one journal entry per completed request. Optional.
type Recorder interface {
	Record(e JournalEntry) error
}

// JournalEntry is the flat record of one request, successful or not.
type JournalEntry struct {
	Time      time.Time `json:"time"`
	Character string    `json:"character"`
	Action    string    `json:"action,omitempty"`
	Status    Status    `json:"status"`
	Code      string    `json:"code,omitempty"`
	Completed int       `json:"completed,omitempty"`
	XP        int       `json:"xp,omitempty"`
	Level     int       `json:"level,omitempty"`
}

type Status string

const (
	StatusApplied  Status = "APPLIED"
	StatusRejected Status = "REJECTED"
)

// Result is what the presentation layer renders. Rejected results carry a
// code and one reason per unmet requirement; applied results carry the
// ledger changes. A persistence failure after a committed apply keeps
// StatusApplied and sets Code to E_PERSISTENCE: memory and durable state
// have diverged and the caller must be told.
type Result struct {
	Character string
	Action    string
	Status    Status
	Code      string
	Reasons   []string

	// Completed counts applied repetitions (1 for a single perform).
	Completed int
	Applied   *ledger.Applied
}

func (r Result) Rejected() bool { return r.Status == StatusRejected }

// phase tracks the cycle position. Every request walks
// idle -> validating -> resolving -> applying -> reporting -> idle and
// terminates; there is no mid-cycle abort.
type phase int

const (
	phaseIdle phase = iota
	phaseValidating
	phaseResolving
	phaseApplying
	phaseReporting
)

type Session struct {
	characterID string
	cats        *content.Catalogs
	eval        *rules.Evaluator
	resolver    *resolve.Resolver
	gateway     Gateway

	journal Recorder
	now     func() time.Time

	mu       sync.Mutex
	phase    phase
	led      *ledger.Ledger
	activity *snapshot.ActivityRowV1
}

type Option func(*Session)

// WithJournal attaches an action journal; every request writes one entry.
func WithJournal(r Recorder) Option {
	return func(s *Session) { s.journal = r }
}

// WithClock overrides the wall clock, for timed-activity tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New loads the character's ledger through the gateway once and returns a
// session bound to it.
func New(ctx context.Context, characterID string, cats *content.Catalogs, curve *xp.Curve, resolver *resolve.Resolver, gateway Gateway, opts ...Option) (*Session, error) {
	snap, err := gateway.LoadLedger(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("session: load ledger for %s: %w", characterID, err)
	}
	led, err := ledger.FromState(curve, snap.SkillMap(), snap.ItemMap())
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s := &Session{
		characterID: characterID,
		cats:        cats,
		eval:        rules.NewEvaluator(cats),
		resolver:    resolver,
		gateway:     gateway,
		now:         time.Now,
		led:         led,
		activity:    snap.Activity,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Ledger exposes the session's ledger for read-only presentation.
func (s *Session) Ledger() *ledger.Ledger { return s.led }

// Activity returns the running timed activity, if any.
func (s *Session) Activity() *snapshot.ActivityRowV1 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity
}

// PerformAction runs one bounded synchronous cycle for the action and
// reports the outcome. An error return means an invariant was violated, not
// that the action was rejected; every expected rejection is a Result value.
func (s *Session) PerformAction(ctx context.Context, actionID string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.performLocked(ctx, actionID, 1)
}

// Repeat performs the action up to n times, stopping at the first
// rejection. Repetitions applied before the stop stand; each cycle is
// independently atomic.
func (s *Session) Repeat(ctx context.Context, actionID string, n int) (Result, error) {
	if n < 1 {
		return Result{}, fmt.Errorf("session: repeat count %d < 1", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.performLocked(ctx, actionID, n)
}

func (s *Session) performLocked(ctx context.Context, actionID string, n int) (Result, error) {
	defer func() { s.phase = phaseIdle }()

	res := Result{Character: s.characterID, Action: actionID}

	s.phase = phaseValidating
	action, ok := s.cats.Actions.ByID[actionID]
	if !ok {
		res.Status = StatusRejected
		res.Code = ErrBadRequest
		res.Reasons = []string{fmt.Sprintf("unknown action %q", actionID)}
		return s.report(res), nil
	}

	for i := 0; i < n; i++ {
		if unmet := s.eval.Evaluate(action, s.led); len(unmet) > 0 {
			// No ledger mutation on ineligibility; earlier repetitions
			// (if any) have already committed and stand.
			res.Code = ErrIneligible
			res.Reasons = rules.Reasons(unmet)
			break
		}

		s.phase = phaseResolving
		out := s.resolver.Resolve(action)

		s.phase = phaseApplying
		applied, err := s.led.Apply(action.Skill, out)
		if err != nil {
			var insufficient *ledger.InsufficientError
			if errors.As(err, &insufficient) {
				res.Code = ErrNoResource
				res.Reasons = []string{fmt.Sprintf("not enough %s (short %d)", s.itemName(insufficient.Item), insufficient.Deficit)}
				break
			}
			return Result{}, err
		}
		res.Completed++
		res.Applied = &applied
		s.phase = phaseValidating
	}

	s.phase = phaseReporting
	if res.Completed == 0 {
		res.Status = StatusRejected
		return s.report(res), nil
	}

	res.Status = StatusApplied
	s.noteSaveFailure(&res, s.save(ctx))
	return s.report(res), nil
}

// noteSaveFailure records a failed save on the result: durable state is
// behind memory and the caller must be told. A code set by an earlier stop
// (a mid-run E_NO_RESOURCE, say) is kept; the save error rides along as a
// reason either way.
func (s *Session) noteSaveFailure(res *Result, err error) {
	if err == nil {
		return
	}
	if res.Code == "" {
		res.Code = ErrPersistence
	}
	res.Reasons = append(res.Reasons, err.Error())
}

// StartActivity begins a timed activity after an eligibility check,
// replacing any activity already running.
func (s *Session) StartActivity(ctx context.Context, actionID string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.phase = phaseIdle }()

	res := Result{Character: s.characterID, Action: actionID}

	s.phase = phaseValidating
	action, ok := s.cats.Actions.ByID[actionID]
	if !ok {
		res.Status = StatusRejected
		res.Code = ErrBadRequest
		res.Reasons = []string{fmt.Sprintf("unknown action %q", actionID)}
		return s.report(res), nil
	}
	if unmet := s.eval.Evaluate(action, s.led); len(unmet) > 0 {
		res.Status = StatusRejected
		res.Code = ErrIneligible
		res.Reasons = rules.Reasons(unmet)
		return s.report(res), nil
	}

	s.phase = phaseReporting
	s.activity = &snapshot.ActivityRowV1{Action: actionID, StartedAt: s.now().UTC()}
	res.Status = StatusApplied
	s.noteSaveFailure(&res, s.save(ctx))
	return s.report(res), nil
}

// CollectActivity settles the running timed activity: one standard cycle per
// completed repetition of the action's duration, then clears it. Stops early
// on the first rejection; completed repetitions stand.
func (s *Session) CollectActivity(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activity == nil {
		res := Result{Character: s.characterID, Status: StatusRejected, Code: ErrNoActivity,
			Reasons: []string{"no activity in progress"}}
		return s.report(res), nil
	}
	actionID := s.activity.Action
	action, ok := s.cats.Actions.ByID[actionID]
	if !ok {
		// Content changed under a saved activity; clear it rather than
		// wedge, and persist the clear so a reload does not resurrect it.
		s.activity = nil
		res := Result{Character: s.characterID, Action: actionID, Status: StatusRejected,
			Code: ErrBadRequest, Reasons: []string{fmt.Sprintf("unknown action %q", actionID)}}
		s.noteSaveFailure(&res, s.save(ctx))
		return s.report(res), nil
	}

	elapsed := s.now().UTC().Sub(s.activity.StartedAt)
	reps := int(elapsed.Seconds()) / action.TimeSeconds
	if reps < 1 {
		// Too early; leave the activity running.
		res := Result{Character: s.characterID, Action: actionID, Status: StatusRejected,
			Code: ErrNoActivity, Reasons: []string{"no repetitions completed yet"}}
		return s.report(res), nil
	}

	running := s.activity
	s.activity = nil
	res, err := s.performLocked(ctx, actionID, reps)
	if err == nil && res.Completed == 0 {
		// Every repetition was rejected, so nothing was saved and the
		// durable snapshot still carries the activity. Keep it in memory
		// too; memory and durable state must agree.
		s.activity = running
	}
	return res, err
}

// StopActivity clears the running activity without collecting.
func (s *Session) StopActivity(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Character: s.characterID}
	if s.activity == nil {
		res.Status = StatusRejected
		res.Code = ErrNoActivity
		res.Reasons = []string{"no activity in progress"}
		return s.report(res), nil
	}
	res.Action = s.activity.Action
	s.activity = nil
	res.Status = StatusApplied
	s.noteSaveFailure(&res, s.save(ctx))
	return s.report(res), nil
}

func (s *Session) save(ctx context.Context) error {
	snap := snapshot.FromState(s.characterID, s.led.Experience(), s.led.Inventory(), s.activity, s.now())
	if err := s.gateway.SaveLedger(ctx, s.characterID, snap); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func (s *Session) report(res Result) Result {
	if res.Code != "" && !IsKnownCode(res.Code) {
		res.Code = ErrBadRequest
	}
	if s.journal != nil {
		e := JournalEntry{
			Time:      s.now().UTC(),
			Character: s.characterID,
			Action:    res.Action,
			Status:    res.Status,
			Code:      res.Code,
		}
		if res.Applied != nil {
			e.Completed = res.Completed
			e.XP = res.Applied.NewXP
			e.Level = res.Applied.NewLevel
		}
		_ = s.journal.Record(e)
	}
	return res
}

func (s *Session) itemName(id string) string {
	if it, ok := s.cats.Items.ByID[id]; ok && it.Name != "" {
		return it.Name
	}
	return id
}
