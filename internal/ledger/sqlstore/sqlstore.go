// Package sqlstore implements the decision ledger on sqlite.
package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"vippanel/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
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
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

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
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ledger.ErrDuplicateApproval
	}
	return err
}

const selectColumns = `id, identity, vip_level, bracket, reward_amount, deposit, required, status, message, operator, partner_response, identity_snapshot, snapshot_digest, created_at`

func (s *Store) Get(id string) (ledger.Record, bool) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM decision_records WHERE id = ?`, id)
	return scanRecord(row)
}

func (s *Store) GetApprovedByIdentity(identity string) (ledger.Record, bool) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM decision_records
WHERE identity = ? AND status = 'approved'
ORDER BY created_at DESC LIMIT 1`, identity)
	return scanRecord(row)
}

func (s *Store) List(f ledger.Filter) (ledger.Page, error) {
	f = f.Normalize()
	where, args := buildWhere(f)

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM decision_records`+where, args...).Scan(&total); err != nil {
		return ledger.Page{}, err
	}

	query := `SELECT ` + selectColumns + ` FROM decision_records` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, f.Limit, (f.Page-1)*f.Limit)...)
	if err != nil {
		return ledger.Page{}, err
	}
	defer rows.Close()

	records := []ledger.Record{}
	for rows.Next() {
		rec, ok := scanRecordRows(rows)
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
  COALESCE(SUM(CASE WHEN status = 'approved' THEN CAST(reward_amount AS REAL) ELSE 0 END), 0),
  COALESCE(AVG(CAST(reward_amount AS REAL)), 0)
FROM decision_records`+where, args...)

	var stats ledger.Stats
	var sum, avg float64
	if err := row.Scan(&stats.Total, &stats.Approved, &stats.Rejected, &stats.Failed, &sum, &avg); err != nil {
		return ledger.Stats{}, err
	}
	stats.RewardSum = decimal.NewFromFloat(sum)
	stats.RewardAvg = decimal.NewFromFloat(avg)
	return stats, nil
}

func (s *Store) StatsByLevel(from, to string) ([]ledger.LevelStats, error) {
	where, args := buildWhere(ledger.Filter{From: from, To: to})
	rows, err := s.db.Query(`SELECT
  vip_level,
  bracket,
  COUNT(*),
  COALESCE(SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = 'approved' THEN CAST(reward_amount AS REAL) ELSE 0 END), 0)
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
		var sum float64
		if err := rows.Scan(&entry.VIPLevel, &entry.Bracket, &entry.Count, &entry.Approved, &sum); err != nil {
			return nil, err
		}
		entry.RewardSum = decimal.NewFromFloat(sum)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) Delete(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM decision_records WHERE id = ?`, id)
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

	if f.Identity != "" {
		clauses = append(clauses, "identity LIKE ?")
		args = append(args, "%"+f.Identity+"%")
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.VIPLevel != 0 {
		clauses = append(clauses, "vip_level = ?")
		args = append(args, f.VIPLevel)
	}
	if f.Operator != "" {
		clauses = append(clauses, "operator = ?")
		args = append(args, f.Operator)
	}
	if f.From != "" {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ledger.Record, bool) {
	return scanInto(row)
}

func scanRecordRows(rows *sql.Rows) (ledger.Record, bool) {
	return scanInto(rows)
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
