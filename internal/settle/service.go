// Package settle orchestrates one promotion settlement: pre-check the ledger,
// fetch the member's deposit figures, decide eligibility, issue the credit and
// record the terminal outcome.
package settle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vippanel/internal/canon"
	"vippanel/internal/credit"
	"vippanel/internal/deposit"
	"vippanel/internal/eligibility"
	"vippanel/internal/ledger"
	"vippanel/internal/platform"
	"vippanel/internal/tier"
)

const (
	DefaultYear     = 2026
	DefaultOperator = "system"
)

type Outcome string

const (
	OutcomeApproved        Outcome = "approved"
	OutcomeAlreadyRewarded Outcome = "already_rewarded"
	OutcomeIneligible      Outcome = "ineligible"
	OutcomeShortfall       Outcome = "shortfall"
	OutcomeCreditFailed    Outcome = "credit_failed"
)

type Request struct {
	Identity string
	Year     int    // zero means DefaultYear
	Operator string // empty means DefaultOperator
}

// Result describes a resolved settlement. Settle returns an error only when
// the upstream lookup failed and nothing was decided or recorded; every other
// path resolves to one of the five outcomes.
type Result struct {
	Outcome  Outcome
	Identity string
	VIPLevel int
	Bracket  string

	Reward   decimal.Decimal
	Deposit  decimal.Decimal
	Required decimal.NullDecimal
	Deficit  decimal.Decimal

	Message      string
	CreditDetail string

	// RecordID is the ledger row written for this settlement, empty when no
	// row was recorded. Existing is the earlier approval that blocked an
	// already-rewarded request.
	RecordID string
	Existing *ledger.Record
}

type Service struct {
	store    ledger.Store
	platform platform.Client
	credit   credit.Client
	logger   *slog.Logger
	locks    *identityLocks

	year     int
	operator string
	now      func() time.Time
	newID    func() string
}

func NewService(store ledger.Store, platformClient platform.Client, creditClient credit.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		platform: platformClient,
		credit:   creditClient,
		logger:   logger,
		locks:    newIdentityLocks(),
		year:     DefaultYear,
		operator: DefaultOperator,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithDefaults overrides the evaluation year and operator used when a request
// leaves them unset. Zero values keep the built-in defaults.
func (s *Service) WithDefaults(year int, operator string) *Service {
	if year != 0 {
		s.year = year
	}
	if operator != "" {
		s.operator = operator
	}
	return s
}

// Settle runs the full decision pipeline for one identity. Holding the
// identity lock across the pre-check and the credit call guarantees at most
// one payout per identity within this process.
func (s *Service) Settle(ctx context.Context, req Request) (Result, error) {
	if req.Identity == "" {
		return Result{}, errors.New("missing identity")
	}
	year := req.Year
	if year == 0 {
		year = s.year
	}
	operator := req.Operator
	if operator == "" {
		operator = s.operator
	}

	release := s.locks.acquire(req.Identity)
	defer release()

	if existing, ok := s.store.GetApprovedByIdentity(req.Identity); ok {
		return Result{
			Outcome:  OutcomeAlreadyRewarded,
			Identity: req.Identity,
			VIPLevel: existing.VIPLevel,
			Bracket:  existing.Bracket,
			Reward:   existing.RewardAmount,
			Message:  "This account has already received the reward",
			Existing: &existing,
		}, nil
	}

	lookup, err := s.platform.FetchDeposit(ctx, req.Identity, year)
	if err != nil {
		// Nothing is recorded on lookup failure so the request can be
		// retried once the platform recovers.
		s.logger.Warn("platform lookup failed",
			slog.String("identity", req.Identity),
			slog.String("error", err.Error()))
		return Result{}, err
	}

	total, source := deposit.Normalize(lookup.Payload)
	if source == "" {
		s.logger.Warn("no deposit figure in lookup payload, treating as zero",
			slog.String("identity", req.Identity))
	}

	outcome := eligibility.Decide(lookup.VIPLevel, total)

	switch outcome.Kind {
	case eligibility.KindIneligible:
		return Result{
			Outcome:  OutcomeIneligible,
			Identity: req.Identity,
			VIPLevel: lookup.VIPLevel,
			Deposit:  total,
			Message:  "This account is not eligible for the reward",
		}, nil

	case eligibility.KindShortfall:
		rec := s.buildRecord(req.Identity, lookup, outcome, total, operator, ledger.StatusRejected,
			"Deposit does not meet the bracket requirement")
		s.insert(rec)
		return Result{
			Outcome:  OutcomeShortfall,
			Identity: req.Identity,
			VIPLevel: lookup.VIPLevel,
			Bracket:  string(outcome.Bracket),
			Deposit:  total,
			Required: decimal.NullDecimal{Decimal: outcome.Required, Valid: true},
			Deficit:  outcome.Deficit,
			Message:  "Deposit does not meet the bracket requirement",
			RecordID: rec.ID,
		}, nil
	}

	reward := decimal.NewFromInt(outcome.Reward)
	creditResult, err := s.credit.Issue(ctx, req.Identity, reward)
	if err != nil {
		// Ambiguous transport failure: the payout may have landed. Record
		// it as failed so an operator reconciles it by hand.
		var ambiguous *credit.AmbiguousError
		if errors.As(err, &ambiguous) {
			s.logger.Error("credit outcome unknown, manual reconciliation required",
				slog.String("identity", req.Identity),
				slog.String("error", err.Error()))
		}
		rec := s.buildRecord(req.Identity, lookup, outcome, total, operator, ledger.StatusFailed,
			"Approved but the credit could not be confirmed")
		s.insert(rec)
		return Result{
			Outcome:      OutcomeCreditFailed,
			Identity:     req.Identity,
			VIPLevel:     lookup.VIPLevel,
			Bracket:      string(outcome.Bracket),
			Reward:       reward,
			Deposit:      total,
			Required:     requiredFor(outcome),
			Message:      "Approved but the credit could not be confirmed",
			CreditDetail: err.Error(),
			RecordID:     rec.ID,
		}, nil
	}

	if !creditResult.Success {
		message := creditResult.Message
		if message == "" {
			message = "Approved but the credit was declined"
		}
		rec := s.buildRecord(req.Identity, lookup, outcome, total, operator, ledger.StatusFailed, message)
		rec.PartnerResponse = creditResult.Body
		s.insert(rec)
		return Result{
			Outcome:      OutcomeCreditFailed,
			Identity:     req.Identity,
			VIPLevel:     lookup.VIPLevel,
			Bracket:      string(outcome.Bracket),
			Reward:       reward,
			Deposit:      total,
			Required:     requiredFor(outcome),
			Message:      message,
			CreditDetail: creditResult.Detail,
			RecordID:     rec.ID,
		}, nil
	}

	message := creditResult.Message
	if message == "" {
		message = "Reward credited successfully"
	}
	rec := s.buildRecord(req.Identity, lookup, outcome, total, operator, ledger.StatusApproved, message)
	rec.PartnerResponse = creditResult.Body
	s.insert(rec)

	return Result{
		Outcome:  OutcomeApproved,
		Identity: req.Identity,
		VIPLevel: lookup.VIPLevel,
		Bracket:  string(outcome.Bracket),
		Reward:   reward,
		Deposit:  total,
		Required: requiredFor(outcome),
		Message:  message,
		RecordID: rec.ID,
	}, nil
}

func (s *Service) buildRecord(identity string, lookup platform.Lookup, outcome eligibility.Outcome, total decimal.Decimal, operator string, status ledger.Status, message string) ledger.Record {
	rec := ledger.Record{
		ID:               s.newID(),
		Identity:         identity,
		VIPLevel:         lookup.VIPLevel,
		Bracket:          string(outcome.Bracket),
		RewardAmount:     decimal.NewFromInt(outcome.Reward),
		Deposit:          total,
		Required:         requiredFor(outcome),
		Status:           status,
		Message:          message,
		Operator:         operator,
		IdentitySnapshot: lookup.Raw,
		CreatedAt:        s.now().UTC().Format(time.RFC3339),
	}
	if len(lookup.Raw) > 0 {
		digest, err := canon.DigestValue(lookup.Payload)
		if err != nil {
			s.logger.Warn("snapshot digest failed",
				slog.String("identity", identity),
				slog.String("error", err.Error()))
		} else {
			rec.SnapshotDigest = digest
		}
	}
	return rec
}

// insert writes the decision row. A write failure never fails the settlement:
// the business outcome already happened, so it is logged for reconciliation.
func (s *Service) insert(rec ledger.Record) {
	if err := s.store.Insert(rec); err != nil {
		s.logger.Error("ledger write failed",
			slog.String("record_id", rec.ID),
			slog.String("identity", rec.Identity),
			slog.String("status", string(rec.Status)),
			slog.String("error", err.Error()))
	}
}

func requiredFor(outcome eligibility.Outcome) decimal.NullDecimal {
	if outcome.Kind == eligibility.KindShortfall {
		return decimal.NullDecimal{Decimal: outcome.Required, Valid: true}
	}
	if minimum, ok := tier.MinimumFor(outcome.Bracket); ok {
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(minimum), Valid: true}
	}
	return decimal.NullDecimal{}
}
