// Package ledger owns durable storage of settlement decisions. Records are
// append-only: they are inserted once at a terminal settlement outcome, never
// mutated, and removed only by the administrative undo operation, which
// re-opens eligibility for that identity.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// ErrDuplicateApproval is returned by Insert when an approved record already
// exists for the identity. SQL backends enforce this with a partial unique
// index so the at-most-one-reward invariant holds across processes.
var ErrDuplicateApproval = errors.New("approved record already exists for identity")

// Record is one durable, immutable audit row per resolved settlement attempt.
type Record struct {
	ID           string
	Identity     string
	VIPLevel     int
	Bracket      string
	RewardAmount decimal.Decimal
	Deposit      decimal.Decimal
	Required     decimal.NullDecimal
	Status       Status
	Message      string
	Operator     string

	// PartnerResponse and IdentitySnapshot are opaque JSON blobs retained
	// for audit. SnapshotDigest is the canonical digest of IdentitySnapshot.
	PartnerResponse  []byte
	IdentitySnapshot []byte
	SnapshotDigest   string

	CreatedAt string
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Identity string // substring match
	Status   Status
	VIPLevel int
	Operator string
	From     string // inclusive RFC3339 bound on CreatedAt
	To       string // inclusive RFC3339 bound on CreatedAt
	Page     int
	Limit    int
}

type Page struct {
	Records    []Record
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

type Stats struct {
	Total     int64
	Approved  int64
	Rejected  int64
	Failed    int64
	RewardSum decimal.Decimal
	RewardAvg decimal.Decimal
}

type LevelStats struct {
	VIPLevel  int
	Bracket   string
	Count     int64
	Approved  int64
	RewardSum decimal.Decimal
}

type Store interface {
	Insert(rec Record) error
	Get(id string) (Record, bool)
	GetApprovedByIdentity(identity string) (Record, bool)
	List(f Filter) (Page, error)
	Stats(from, to string) (Stats, error)
	StatsByLevel(from, to string) ([]LevelStats, error)
	Delete(id string) (bool, error)
	Close() error
}

// Normalize clamps paging values to sane defaults.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	return f
}
