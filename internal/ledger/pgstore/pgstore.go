// Package pgstore implements the decision ledger on postgres.
package pgstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"vippanel/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const insertSQL = `INSERT INTO decision_records
(id, identity, vip_level, bracket, reward_amount, deposit, required, status, message, operator, partner_response, identity_snapshot, snapshot_digest, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func (s *Store) Insert(rec ledger.Record) error {
	_, err := s.db.Exec(insertSQL,
		rec.ID,
		rec.Identity,
		rec.VIPLevel,
		rec.Bracket,
		rec.RewardAmount.String(),
		rec.Deposit.String(),
		nullDecimalString(rec.Required),
		string(rec.Status),
		rec.Message,
		rec.Operator,
		nullBytes(rec.PartnerResponse),
		nullBytes(rec.IdentitySnapshot),
		rec.SnapshotDigest,
		rec.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ledger.ErrDuplicateApproval
	}
	return err
}

const selectColumns = `id, identity, vip_level, bracket, reward_amount, deposit, required, status, message, operator, partner_response, identity_snapshot, snapshot_digest, created_at`

func (s *Store) Get(id string) (ledger.Record, bool) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM decision_records WHERE id = $1`, id)
	return scanInto(row)
}

func (s *Store) GetApprovedByIdentity(identity string) (ledger.Record, bool) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM decision_records
WHERE identity = $1 AND status = 'approved'
ORDER BY created_at DESC LIMIT 1`, identity)
	return scanInto(row)
}

func (s *Store) List(f ledger.Filter) (ledger.Page, error) {
	f = f.Normalize()
	where, args := buildWhere(f)

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM decision_records`+where, args...).Scan(&total); err != nil {
		return ledger.Page{}, err
	}

	query := fmt.Sprintf(`SELECT %s FROM decision_records%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		selectColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.Query(query, append(args, f.Limit, (f.Page-1)*f.Limit)...)
	if err != nil {
		return ledger.Page{}, err
	}
	defer rows.Close()

	records := []ledger.Record{}
	for rows.Next() {
		rec, ok := scanInto(rows)
		if !ok {
			return ledger.Page{}, fmt.Errorf("scan decision record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return ledger.Page{}, err
	}

	return ledger.Page{
		Records:    records,
		Page:       f.Page,
		Limit:      f.Limit,
		Total:      total,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

func (s *Store) Stats(from, to string) (ledger.Stats, error) {
	where, args := buildWhere(ledger.Filter{From: from, To: to})
	row := s.db.QueryRow(`SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = 'approved' THEN reward_amount ELSE 0 END), 0)::TEXT,
  COALESCE(AVG(reward_amount), 0)::TEXT
FROM decision_records`+where, args...)

	var stats ledger.Stats
	var sum, avg string
	if err := row.Scan(&stats.Total, &stats.Approved, &stats.Rejected, &stats.Failed, &sum, &avg); err != nil {
		return ledger.Stats{}, err
	}
	var err error
	if stats.RewardSum, err = decimal.NewFromString(sum); err != nil {
		return ledger.Stats{}, err
	}
	if stats.RewardAvg, err = decimal.NewFromString(avg); err != nil {
		return ledger.Stats{}, err
	}
	return stats, nil
}

func (s *Store) StatsByLevel(from, to string) ([]ledger.LevelStats, error) {
	where, args := buildWhere(ledger.Filter{From: from, To: to})
	rows, err := s.db.Query(`SELECT
  vip_level,
  bracket,
  COUNT(*),
  COALESCE(SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = 'approved' THEN reward_amount ELSE 0 END), 0)::TEXT
FROM decision_records`+where+`
GROUP BY vip_level, bracket
ORDER BY vip_level`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.LevelStats{}
	for rows.Next() {
		var entry ledger.LevelStats
		var sum string
		if err := rows.Scan(&entry.VIPLevel, &entry.Bracket, &entry.Count, &entry.Approved, &sum); err != nil {
			return nil, err
		}
		if entry.RewardSum, err = decimal.NewFromString(sum); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) Delete(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM decision_records WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func buildWhere(f ledger.Filter) (string, []any) {
	clauses := []string{}
	args := []any{}

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Identity != "" {
		add("identity LIKE $%d", "%"+f.Identity+"%")
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.VIPLevel != 0 {
		add("vip_level = $%d", f.VIPLevel)
	}
	if f.Operator != "" {
		add("operator = $%d", f.Operator)
	}
	if f.From != "" {
		add("created_at >= $%d", f.From)
	}
	if f.To != "" {
		add("created_at <= $%d", f.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (ledger.Record, bool) {
	var rec ledger.Record
	var reward, deposit string
	var required, partner, snapshot sql.NullString
	if err := sc.Scan(
		&rec.ID,
		&rec.Identity,
		&rec.VIPLevel,
		&rec.Bracket,
		&reward,
		&deposit,
		&required,
		&rec.Status,
		&rec.Message,
		&rec.Operator,
		&partner,
		&snapshot,
		&rec.SnapshotDigest,
		&rec.CreatedAt,
	); err != nil {
		return ledger.Record{}, false
	}

	var err error
	if rec.RewardAmount, err = decimal.NewFromString(reward); err != nil {
		return ledger.Record{}, false
	}
	if rec.Deposit, err = decimal.NewFromString(deposit); err != nil {
		return ledger.Record{}, false
	}
	if required.Valid {
		value, err := decimal.NewFromString(required.String)
		if err != nil {
			return ledger.Record{}, false
		}
		rec.Required = decimal.NullDecimal{Decimal: value, Valid: true}
	}
	if partner.Valid {
		rec.PartnerResponse = []byte(partner.String)
	}
	if snapshot.Valid {
		rec.IdentitySnapshot = []byte(snapshot.String)
	}
	return rec, true
}

func nullDecimalString(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
