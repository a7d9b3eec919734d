package session

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"idlescape.quest/internal/game/content"
	"idlescape.quest/internal/game/resolve"
	"idlescape.quest/internal/game/rng"
	"idlescape.quest/internal/game/xp"
	"idlescape.quest/internal/persistence/snapshot"
)

type fakeGateway struct {
	loaded  snapshot.LedgerV1
	saved   []snapshot.LedgerV1
	saveErr error
}

func (g *fakeGateway) LoadLedger(ctx context.Context, id string) (snapshot.LedgerV1, error) {
	return g.loaded, nil
}

func (g *fakeGateway) SaveLedger(ctx context.Context, id string, snap snapshot.LedgerV1) error {
	if g.saveErr != nil {
		return g.saveErr
	}
	g.saved = append(g.saved, snap)
	return nil
}

type memJournal struct {
	entries []JournalEntry
}

func (j *memJournal) Record(e JournalEntry) error {
	j.entries = append(j.entries, e)
	return nil
}

func testCatalogs(t *testing.T) *content.Catalogs {
	t.Helper()
	cats, err := content.Load("../../../configs")
	if err != nil {
		t.Fatalf("load configs: %v", err)
	}
	return cats
}

func newSession(t *testing.T, gw Gateway, src rng.Source, opts ...Option) *Session {
	t.Helper()
	curve, err := xp.New(100, 2.5)
	if err != nil {
		t.Fatalf("curve: %v", err)
	}
	s, err := New(context.Background(), "char_test", testCatalogs(t), curve,
		resolve.New(src, 1.0), gw, opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestPerformAction_MineCopperEndToEnd(t *testing.T) {
	gw := &fakeGateway{}
	s := newSession(t, gw, rng.NewFixed())

	res, err := s.PerformAction(context.Background(), "mine_copper")
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if res.Status != StatusApplied || res.Code != "" {
		t.Fatalf("result = %+v, want clean apply", res)
	}
	if res.Applied == nil {
		t.Fatal("missing applied details")
	}
	if res.Applied.NewXP != 10 {
		t.Fatalf("mining xp = %d, want 10", res.Applied.NewXP)
	}
	if lvl := s.Ledger().SkillLevel("mining"); lvl != res.Applied.NewLevel {
		t.Fatalf("result level %d != ledger level %d", res.Applied.NewLevel, lvl)
	}
	if n := s.Ledger().ItemCount("copper_ore"); n != 1 {
		t.Fatalf("copper_ore = %d, want 1", n)
	}
	if len(gw.saved) != 1 {
		t.Fatalf("save called %d times, want exactly 1", len(gw.saved))
	}
	snap := gw.saved[0]
	if len(snap.Skills) != 1 || snap.Skills[0] != (snapshot.SkillRowV1{Skill: "mining", Experience: 10}) {
		t.Fatalf("saved skills = %+v", snap.Skills)
	}
	if len(snap.Items) != 1 || snap.Items[0] != (snapshot.ItemRowV1{Item: "copper_ore", Quantity: 1}) {
		t.Fatalf("saved items = %+v", snap.Items)
	}
}

func TestPerformAction_IneligibleLeavesLedgerUntouched(t *testing.T) {
	gw := &fakeGateway{}
	s := newSession(t, gw, rng.NewFixed())
	before := ledgerState(s)

	res, err := s.PerformAction(context.Background(), "chop_oak")
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if res.Status != StatusRejected || res.Code != ErrIneligible {
		t.Fatalf("result = %+v, want rejection", res)
	}
	want := []string{"Woodcutting level 3 required, have 1"}
	if !reflect.DeepEqual(res.Reasons, want) {
		t.Fatalf("reasons = %v, want %v", res.Reasons, want)
	}
	if got := ledgerState(s); !reflect.DeepEqual(before, got) {
		t.Fatalf("ledger changed on rejection:\nbefore %+v\nafter  %+v", before, got)
	}
	if len(gw.saved) != 0 {
		t.Fatal("rejected cycle must not save")
	}
}

func TestPerformAction_InsufficientResources(t *testing.T) {
	gw := &fakeGateway{}
	s := newSession(t, gw, rng.NewFixed())
	before := ledgerState(s)

	res, err := s.PerformAction(context.Background(), "smelt_bronze")
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if res.Status != StatusRejected || res.Code != ErrNoResource {
		t.Fatalf("result = %+v, want E_NO_RESOURCE rejection", res)
	}
	if got := ledgerState(s); !reflect.DeepEqual(before, got) {
		t.Fatalf("ledger changed on rejection")
	}
	if len(gw.saved) != 0 {
		t.Fatal("rejected cycle must not save")
	}
}

func TestPerformAction_UnknownAction(t *testing.T) {
	s := newSession(t, &fakeGateway{}, rng.NewFixed())
	res, err := s.PerformAction(context.Background(), "mine_mithril")
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if res.Status != StatusRejected || res.Code != ErrBadRequest {
		t.Fatalf("result = %+v, want E_BAD_REQUEST", res)
	}
}

func TestPerformAction_PersistenceFailureReported(t *testing.T) {
	gw := &fakeGateway{saveErr: errors.New("disk full")}
	s := newSession(t, gw, rng.NewFixed())

	res, err := s.PerformAction(context.Background(), "mine_copper")
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	// The in-memory apply committed; the caller must learn about the
	// divergence.
	if res.Status != StatusApplied || res.Code != ErrPersistence {
		t.Fatalf("result = %+v, want applied with E_PERSISTENCE", res)
	}
	if s.Ledger().SkillXP("mining") != 10 {
		t.Fatalf("mining xp = %d, want 10", s.Ledger().SkillXP("mining"))
	}
}

func TestRepeat_StopsAtFirstRejection(t *testing.T) {
	gw := &fakeGateway{}
	s := newSession(t, gw, rng.NewFixed())

	// One set of ores: the second smelt must stop the run.
	if _, err := s.PerformAction(context.Background(), "mine_copper"); err != nil {
		t.Fatalf("mine copper: %v", err)
	}
	if _, err := s.PerformAction(context.Background(), "mine_tin"); err != nil {
		t.Fatalf("mine tin: %v", err)
	}

	res, err := s.Repeat(context.Background(), "smelt_bronze", 3)
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if res.Status != StatusApplied {
		t.Fatalf("status = %v; the first smelt committed", res.Status)
	}
	if res.Completed != 1 {
		t.Fatalf("completed = %d, want 1", res.Completed)
	}
	if n := s.Ledger().ItemCount("bronze_bar"); n != 1 {
		t.Fatalf("bronze_bar = %d, want 1", n)
	}
	// 2 mines + 1 repeat batch.
	if len(gw.saved) != 3 {
		t.Fatalf("save called %d times, want 3", len(gw.saved))
	}
}

func TestRepeat_SaveFailureKeepsStopCode(t *testing.T) {
	gw := &fakeGateway{}
	s := newSession(t, gw, rng.NewFixed())

	if _, err := s.PerformAction(context.Background(), "mine_copper"); err != nil {
		t.Fatalf("mine copper: %v", err)
	}
	if _, err := s.PerformAction(context.Background(), "mine_tin"); err != nil {
		t.Fatalf("mine tin: %v", err)
	}

	// The run stops on the second smelt, then the save of the first one
	// fails too. The stop code wins; the save error stays visible as a
	// reason.
	gw.saveErr = errors.New("disk full")
	res, err := s.Repeat(context.Background(), "smelt_bronze", 3)
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if res.Status != StatusApplied || res.Completed != 1 {
		t.Fatalf("result = %+v, want 1 applied", res)
	}
	if res.Code != ErrNoResource {
		t.Fatalf("code = %q, want E_NO_RESOURCE kept over the save failure", res.Code)
	}
	var sawSaveErr bool
	for _, r := range res.Reasons {
		if strings.Contains(r, "disk full") {
			sawSaveErr = true
		}
	}
	if !sawSaveErr {
		t.Fatalf("reasons = %v, want the save error included", res.Reasons)
	}
}

func TestRepeat_RejectsBadCount(t *testing.T) {
	s := newSession(t, &fakeGateway{}, rng.NewFixed())
	if _, err := s.Repeat(context.Background(), "mine_copper", 0); err == nil {
		t.Fatal("expected error for repeat count 0")
	}
}

func TestTimedActivity_StartCollect(t *testing.T) {
	gw := &fakeGateway{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := newSession(t, gw, rng.NewFixed(), WithClock(clock))

	res, err := s.StartActivity(context.Background(), "mine_copper")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Rejected() {
		t.Fatalf("start rejected: %+v", res)
	}
	if act := s.Activity(); act == nil || act.Action != "mine_copper" {
		t.Fatalf("activity = %+v", act)
	}

	// mine_copper takes 3s; 10s elapsed completes 3 repetitions.
	now = now.Add(10 * time.Second)
	res, err = s.CollectActivity(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if res.Status != StatusApplied || res.Completed != 3 {
		t.Fatalf("collect = %+v, want 3 completed", res)
	}
	if got := s.Ledger().SkillXP("mining"); got != 30 {
		t.Fatalf("mining xp = %d, want 30", got)
	}
	if s.Activity() != nil {
		t.Fatal("activity should be cleared after collect")
	}
}

func TestTimedActivity_CollectTooEarlyKeepsActivity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := newSession(t, &fakeGateway{}, rng.NewFixed(), WithClock(clock))

	if _, err := s.StartActivity(context.Background(), "mine_copper"); err != nil {
		t.Fatalf("start: %v", err)
	}
	now = now.Add(1 * time.Second)
	res, err := s.CollectActivity(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !res.Rejected() || res.Code != ErrNoActivity {
		t.Fatalf("result = %+v, want too-early rejection", res)
	}
	if s.Activity() == nil {
		t.Fatal("too-early collect must keep the activity running")
	}
}

func TestTimedActivity_StartReplacesRunning(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newSession(t, &fakeGateway{}, rng.NewFixed(), WithClock(func() time.Time { return now }))

	if _, err := s.StartActivity(context.Background(), "mine_copper"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.StartActivity(context.Background(), "chop_logs"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if act := s.Activity(); act == nil || act.Action != "chop_logs" {
		t.Fatalf("activity = %+v, want chop_logs", act)
	}
}

func TestTimedActivity_StartRequiresEligibility(t *testing.T) {
	s := newSession(t, &fakeGateway{}, rng.NewFixed())
	res, err := s.StartActivity(context.Background(), "chop_oak")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !res.Rejected() || res.Code != ErrIneligible {
		t.Fatalf("result = %+v, want ineligible", res)
	}
	if s.Activity() != nil {
		t.Fatal("ineligible start must not record an activity")
	}
}

func TestCollectActivity_AllRejectedKeepsActivity(t *testing.T) {
	gw := &fakeGateway{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := newSession(t, gw, rng.NewFixed(), WithClock(clock))

	// smelt_bronze has no requirements, so starting succeeds even with no
	// ore; every collected repetition then fails its cost debit.
	if _, err := s.StartActivity(context.Background(), "smelt_bronze"); err != nil {
		t.Fatalf("start: %v", err)
	}
	now = now.Add(10 * time.Second)

	res, err := s.CollectActivity(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !res.Rejected() || res.Code != ErrNoResource {
		t.Fatalf("result = %+v, want E_NO_RESOURCE rejection", res)
	}
	// Nothing was saved by the rejected collect, so the durable snapshot
	// still carries the activity; memory must agree.
	if s.Activity() == nil {
		t.Fatal("all-rejected collect must keep the activity in memory")
	}
	last := gw.saved[len(gw.saved)-1]
	if last.Activity == nil || last.Activity.Action != "smelt_bronze" {
		t.Fatalf("durable activity = %+v", last.Activity)
	}

	// Once the ore exists the same activity settles normally.
	if _, err := s.PerformAction(context.Background(), "mine_copper"); err != nil {
		t.Fatalf("mine copper: %v", err)
	}
	if _, err := s.PerformAction(context.Background(), "mine_tin"); err != nil {
		t.Fatalf("mine tin: %v", err)
	}
	res, err = s.CollectActivity(context.Background())
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if res.Status != StatusApplied || res.Completed != 1 {
		t.Fatalf("second collect = %+v, want 1 completed", res)
	}
	if s.Activity() != nil {
		t.Fatal("settled activity should be cleared")
	}
	last = gw.saved[len(gw.saved)-1]
	if last.Activity != nil {
		t.Fatalf("durable activity = %+v, want cleared", last.Activity)
	}
}

func TestCollectActivity_UnknownActionPersistsClear(t *testing.T) {
	gw := &fakeGateway{
		loaded: snapshot.LedgerV1{
			Activity: &snapshot.ActivityRowV1{
				Action:    "churn_butter",
				StartedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			},
		},
	}
	s := newSession(t, gw, rng.NewFixed())

	res, err := s.CollectActivity(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !res.Rejected() || res.Code != ErrBadRequest {
		t.Fatalf("result = %+v, want E_BAD_REQUEST", res)
	}
	if s.Activity() != nil {
		t.Fatal("stale activity should be cleared")
	}
	if len(gw.saved) != 1 || gw.saved[0].Activity != nil {
		t.Fatalf("clear not persisted: saved = %+v", gw.saved)
	}
}

func TestCollectActivity_NoneRunning(t *testing.T) {
	s := newSession(t, &fakeGateway{}, rng.NewFixed())
	res, err := s.CollectActivity(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !res.Rejected() || res.Code != ErrNoActivity {
		t.Fatalf("result = %+v, want E_NO_ACTIVITY", res)
	}
}

func TestStopActivity(t *testing.T) {
	s := newSession(t, &fakeGateway{}, rng.NewFixed())
	if _, err := s.StartActivity(context.Background(), "mine_copper"); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := s.StopActivity(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Rejected() {
		t.Fatalf("stop rejected: %+v", res)
	}
	if s.Activity() != nil {
		t.Fatal("activity should be cleared")
	}
	// Stopped activities do not grant anything.
	if got := s.Ledger().SkillXP("mining"); got != 0 {
		t.Fatalf("mining xp = %d, want 0", got)
	}
}

func TestJournal_OneEntryPerRequest(t *testing.T) {
	j := &memJournal{}
	s := newSession(t, &fakeGateway{}, rng.NewFixed(), WithJournal(j))

	if _, err := s.PerformAction(context.Background(), "mine_copper"); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if _, err := s.PerformAction(context.Background(), "chop_oak"); err != nil {
		t.Fatalf("perform: %v", err)
	}
	if len(j.entries) != 2 {
		t.Fatalf("journal entries = %d, want 2", len(j.entries))
	}
	if j.entries[0].Status != StatusApplied || j.entries[0].XP != 10 {
		t.Fatalf("entry 0 = %+v", j.entries[0])
	}
	if j.entries[1].Status != StatusRejected || j.entries[1].Code != ErrIneligible {
		t.Fatalf("entry 1 = %+v", j.entries[1])
	}
}

func TestSessionResumesState(t *testing.T) {
	gw := &fakeGateway{
		loaded: snapshot.LedgerV1{
			Skills: []snapshot.SkillRowV1{{Skill: "woodcutting", Experience: 600}},
			Items:  []snapshot.ItemRowV1{{Item: "logs", Quantity: 4}},
		},
	}
	s := newSession(t, gw, rng.NewFixed(34, 2))

	// 600 xp on the default curve is past the level 3 threshold (566), so
	// chop_oak is now eligible.
	res, err := s.PerformAction(context.Background(), "chop_oak")
	if err != nil {
		t.Fatalf("perform: %v", err)
	}
	if res.Status != StatusApplied {
		t.Fatalf("result = %+v, want applied", res)
	}
	if n := s.Ledger().ItemCount("logs"); n != 4 {
		t.Fatalf("logs = %d, want untouched 4", n)
	}
}

func ledgerState(s *Session) map[string]any {
	return map[string]any{
		"skills": s.Ledger().Experience(),
		"items":  s.Ledger().Inventory(),
	}
}
