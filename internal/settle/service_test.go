package settle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"vippanel/internal/credit"
	"vippanel/internal/ledger"
	"vippanel/internal/platform"
)

type fakePlatform struct {
	mu       sync.Mutex
	calls    int
	lastYear int
	lookup   platform.Lookup
	err      error
	perCall  func(identity string) (platform.Lookup, error)
}

func (f *fakePlatform) FetchDeposit(_ context.Context, identity string, year int) (platform.Lookup, error) {
	f.mu.Lock()
	f.calls++
	f.lastYear = year
	f.mu.Unlock()
	if f.perCall != nil {
		return f.perCall(identity)
	}
	return f.lookup, f.err
}

type fakeCredit struct {
	calls  atomic.Int64
	result credit.Result
	err    error
}

func (f *fakeCredit) Issue(_ context.Context, _ string, _ decimal.Decimal) (credit.Result, error) {
	f.calls.Add(1)
	return f.result, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lookupFor(level int, total any) platform.Lookup {
	payload := map[string]any{
		"userInfo":           map[string]any{"vipLevel": float64(level)},
		"totalDepositMonth1": total,
	}
	raw, _ := json.Marshal(payload)
	return platform.Lookup{VIPLevel: level, Payload: payload, Raw: raw}
}

func newTestService(store ledger.Store, p platform.Client, c credit.Client) *Service {
	svc := NewService(store, p, c, testLogger())
	counter := 0
	svc.newID = func() string {
		counter++
		return fmt.Sprintf("id-%03d", counter)
	}
	return svc
}

func TestSettleApproved(t *testing.T) {
	store := ledger.NewInMemoryStore()
	creditClient := &fakeCredit{result: credit.Result{Success: true, Message: "completed", Body: []byte(`{"success":true}`)}}
	svc := newTestService(store, &fakePlatform{lookup: lookupFor(7, float64(30000))}, creditClient)

	result, err := svc.Settle(context.Background(), Request{Identity: "alice"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if !result.Reward.Equal(decimal.NewFromInt(76)) {
		t.Fatalf("reward = %s, want 76", result.Reward)
	}
	if result.Bracket != "VIP6-10" {
		t.Fatalf("bracket = %s", result.Bracket)
	}
	if creditClient.calls.Load() != 1 {
		t.Fatalf("credit calls = %d", creditClient.calls.Load())
	}

	rec, ok := store.Get(result.RecordID)
	if !ok {
		t.Fatalf("expected ledger row")
	}
	if rec.Status != ledger.StatusApproved || rec.Operator != "system" || rec.VIPLevel != 7 {
		t.Fatalf("record: %+v", rec)
	}
	if rec.SnapshotDigest == "" || len(rec.IdentitySnapshot) == 0 {
		t.Fatalf("expected audit snapshot: %+v", rec)
	}
}

func TestSettleShortfallRecordsRejected(t *testing.T) {
	store := ledger.NewInMemoryStore()
	creditClient := &fakeCredit{}
	svc := newTestService(store, &fakePlatform{lookup: lookupFor(7, float64(29999))}, creditClient)

	result, err := svc.Settle(context.Background(), Request{Identity: "alice"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Outcome != OutcomeShortfall {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if !result.Deficit.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("deficit = %s, want 1", result.Deficit)
	}
	if creditClient.calls.Load() != 0 {
		t.Fatalf("shortfall must not call credit")
	}

	rec, ok := store.Get(result.RecordID)
	if !ok || rec.Status != ledger.StatusRejected {
		t.Fatalf("expected rejected row, got %+v (ok=%v)", rec, ok)
	}
	if !rec.RewardAmount.IsZero() {
		t.Fatalf("rejected row must carry zero reward: %s", rec.RewardAmount)
	}
}

func TestSettleIneligibleNotRecorded(t *testing.T) {
	for _, level := range []int{0, 61} {
		store := ledger.NewInMemoryStore()
		creditClient := &fakeCredit{}
		svc := newTestService(store, &fakePlatform{lookup: lookupFor(level, float64(999999))}, creditClient)

		result, err := svc.Settle(context.Background(), Request{Identity: "alice"})
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		if result.Outcome != OutcomeIneligible {
			t.Fatalf("level %d outcome = %s", level, result.Outcome)
		}
		if creditClient.calls.Load() != 0 {
			t.Fatalf("level %d: unexpected credit call", level)
		}
		page, _ := store.List(ledger.Filter{})
		if page.Total != 0 {
			t.Fatalf("level %d: ineligible must not be recorded", level)
		}
	}
}

func TestSettleNoMinimumBracket(t *testing.T) {
	store := ledger.NewInMemoryStore()
	creditClient := &fakeCredit{result: credit.Result{Success: true}}
	svc := newTestService(store, &fakePlatform{lookup: lookupFor(55, float64(0))}, creditClient)

	result, err := svc.Settle(context.Background(), Request{Identity: "whale"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Outcome != OutcomeApproved {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if !result.Reward.Equal(decimal.NewFromInt(6111)) {
		t.Fatalf("reward = %s, want 6111", result.Reward)
	}
	if result.Required.Valid {
		t.Fatalf("top bracket has no deposit requirement")
	}
}

func TestSettleAlreadyRewarded(t *testing.T) {
	store := ledger.NewInMemoryStore()
	creditClient := &fakeCredit{result: credit.Result{Success: true}}
	upstream := &fakePlatform{lookup: lookupFor(7, float64(30000))}
	svc := newTestService(store, upstream, creditClient)

	first, err := svc.Settle(context.Background(), Request{Identity: "alice"})
	if err != nil || first.Outcome != OutcomeApproved {
		t.Fatalf("first settle: %+v %v", first, err)
	}

	second, err := svc.Settle(context.Background(), Request{Identity: "alice"})
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if second.Outcome != OutcomeAlreadyRewarded {
		t.Fatalf("outcome = %s", second.Outcome)
	}
	if second.Existing == nil || second.Existing.ID != first.RecordID {
		t.Fatalf("existing record: %+v", second.Existing)
	}
	if creditClient.calls.Load() != 1 {
		t.Fatalf("credit calls = %d, want 1", creditClient.calls.Load())
	}
	// The pre-check short-circuits before the platform lookup.
	if upstream.calls != 1 {
		t.Fatalf("lookup calls = %d, want 1", upstream.calls)
	}
}

func TestSettleUpstreamFailureNotRecorded(t *testing.T) {
	store := ledger.NewInMemoryStore()
	creditClient := &fakeCredit{}
	svc := newTestService(store, &fakePlatform{err: &platform.LookupError{Message: "user not found"}}, creditClient)

	_, err := svc.Settle(context.Background(), Request{Identity: "ghost"})
	var lookupErr *platform.LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected LookupError, got %v", err)
	}
	page, _ := store.List(ledger.Filter{})
	if page.Total != 0 {
		t.Fatalf("lookup failure must not be recorded")
	}
	if creditClient.calls.Load() != 0 {
		t.Fatalf("unexpected credit call")
	}
}

func TestSettleCreditDeclineRecordsFailed(t *testing.T) {
	store := ledger.NewInMemoryStore()
	creditClient := &fakeCredit{result: credit.Result{Success: false, Message: "promotion rejected", Detail: "limit reached", Body: []byte(`{"success":false}`)}}
	svc := newTestService(store, &fakePlatform{lookup: lookupFor(7, float64(30000))}, creditClient)

	result, err := svc.Settle(context.Background(), Request{Identity: "alice"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Outcome != OutcomeCreditFailed {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if result.Message != "promotion rejected" || result.CreditDetail != "limit reached" {
		t.Fatalf("result: %+v", result)
	}

	rec, ok := store.Get(result.RecordID)
	if !ok || rec.Status != ledger.StatusFailed {
		t.Fatalf("expected failed row, got %+v (ok=%v)", rec, ok)
	}
	if string(rec.PartnerResponse) != `{"success":false}` {
		t.Fatalf("partner response: %s", rec.PartnerResponse)
	}

	// A failed credit does not burn eligibility.
	creditClient.result = credit.Result{Success: true}
	retry, err := svc.Settle(context.Background(), Request{Identity: "alice"})
	if err != nil || retry.Outcome != OutcomeApproved {
		t.Fatalf("retry: %+v %v", retry, err)
	}
}

func TestSettleAmbiguousCreditRecordsFailed(t *testing.T) {
	store := ledger.NewInMemoryStore()
	creditClient := &fakeCredit{err: &credit.AmbiguousError{Err: errors.New("connection reset")}}
	svc := newTestService(store, &fakePlatform{lookup: lookupFor(7, float64(30000))}, creditClient)

	result, err := svc.Settle(context.Background(), Request{Identity: "alice"})
	if err != nil {
		t.Fatalf("settle resolves ambiguous credit as an outcome: %v", err)
	}
	if result.Outcome != OutcomeCreditFailed {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	rec, ok := store.Get(result.RecordID)
	if !ok || rec.Status != ledger.StatusFailed {
		t.Fatalf("expected failed row, got %+v (ok=%v)", rec, ok)
	}
}

func TestSettleConcurrentSingleCredit(t *testing.T) {
	store := ledger.NewInMemoryStore()
	creditClient := &fakeCredit{result: credit.Result{Success: true}}
	svc := newTestService(store, &fakePlatform{lookup: lookupFor(7, float64(30000))}, creditClient)

	const workers = 8
	var wg sync.WaitGroup
	var approved atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Settle(context.Background(), Request{Identity: "alice"})
			if err != nil {
				t.Errorf("settle: %v", err)
				return
			}
			if result.Outcome == OutcomeApproved {
				approved.Add(1)
			}
		}()
	}
	wg.Wait()

	if approved.Load() != 1 {
		t.Fatalf("approved = %d, want exactly 1", approved.Load())
	}
	if creditClient.calls.Load() != 1 {
		t.Fatalf("credit calls = %d, want exactly 1", creditClient.calls.Load())
	}
}

func TestSettleConfiguredDefaults(t *testing.T) {
	store := ledger.NewInMemoryStore()
	creditClient := &fakeCredit{result: credit.Result{Success: true}}
	upstream := &fakePlatform{lookup: lookupFor(7, float64(30000))}
	svc := newTestService(store, upstream, creditClient).WithDefaults(2027, "ops-team")

	result, err := svc.Settle(context.Background(), Request{Identity: "alice"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if upstream.lastYear != 2027 {
		t.Fatalf("lookup year = %d, want 2027", upstream.lastYear)
	}
	rec, ok := store.Get(result.RecordID)
	if !ok || rec.Operator != "ops-team" {
		t.Fatalf("record operator: %+v (ok=%v)", rec, ok)
	}

	// An explicit request year still wins over the configured default.
	store2 := ledger.NewInMemoryStore()
	svc2 := newTestService(store2, upstream, &fakeCredit{result: credit.Result{Success: true}}).WithDefaults(2027, "")
	if _, err := svc2.Settle(context.Background(), Request{Identity: "bob", Year: 2025}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if upstream.lastYear != 2025 {
		t.Fatalf("lookup year = %d, want 2025", upstream.lastYear)
	}
}

func TestSettleMissingIdentity(t *testing.T) {
	svc := newTestService(ledger.NewInMemoryStore(), &fakePlatform{}, &fakeCredit{})
	if _, err := svc.Settle(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error for missing identity")
	}
}

func TestSettleDegradedPayloadTreatedAsZero(t *testing.T) {
	store := ledger.NewInMemoryStore()
	creditClient := &fakeCredit{}
	payload := map[string]any{"userInfo": map[string]any{"vipLevel": float64(7)}}
	raw, _ := json.Marshal(payload)
	svc := newTestService(store, &fakePlatform{lookup: platform.Lookup{VIPLevel: 7, Payload: payload, Raw: raw}}, creditClient)

	result, err := svc.Settle(context.Background(), Request{Identity: "alice"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Outcome != OutcomeShortfall {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if !result.Deposit.IsZero() {
		t.Fatalf("deposit = %s, want 0", result.Deposit)
	}
}
