package ledger

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// InMemoryStore backs the ledger for tests and the dev configuration.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func (s *InMemoryStore) Insert(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Status == StatusApproved {
		for _, existing := range s.records {
			if existing.Identity == rec.Identity && existing.Status == StatusApproved {
				return ErrDuplicateApproval
			}
		}
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *InMemoryStore) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *InMemoryStore) GetApprovedByIdentity(identity string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest Record
	found := false
	for _, rec := range s.records {
		if rec.Identity != identity || rec.Status != StatusApproved {
			continue
		}
		if !found || rec.CreatedAt > latest.CreatedAt {
			latest = rec
			found = true
		}
	}
	return latest, found
}

func (s *InMemoryStore) List(f Filter) (Page, error) {
	f = f.Normalize()

	s.mu.Lock()
	matched := make([]Record, 0)
	for _, rec := range s.records {
		if matches(rec, f) {
			matched = append(matched, rec)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt > matched[j].CreatedAt
	})

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}

	return Page{
		Records:    matched[start:end],
		Page:       f.Page,
		Limit:      f.Limit,
		Total:      total,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

func (s *InMemoryStore) Stats(from, to string) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{RewardSum: decimal.Zero, RewardAvg: decimal.Zero}
	rewardTotal := decimal.Zero
	for _, rec := range s.records {
		if !inRange(rec.CreatedAt, from, to) {
			continue
		}
		stats.Total++
		switch rec.Status {
		case StatusApproved:
			stats.Approved++
			stats.RewardSum = stats.RewardSum.Add(rec.RewardAmount)
		case StatusRejected:
			stats.Rejected++
		case StatusFailed:
			stats.Failed++
		}
		rewardTotal = rewardTotal.Add(rec.RewardAmount)
	}
	if stats.Total > 0 {
		stats.RewardAvg = rewardTotal.Div(decimal.NewFromInt(stats.Total))
	}
	return stats, nil
}

func (s *InMemoryStore) StatsByLevel(from, to string) ([]LevelStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byLevel := map[int]*LevelStats{}
	for _, rec := range s.records {
		if !inRange(rec.CreatedAt, from, to) {
			continue
		}
		entry, ok := byLevel[rec.VIPLevel]
		if !ok {
			entry = &LevelStats{VIPLevel: rec.VIPLevel, Bracket: rec.Bracket, RewardSum: decimal.Zero}
			byLevel[rec.VIPLevel] = entry
		}
		entry.Count++
		if rec.Status == StatusApproved {
			entry.Approved++
			entry.RewardSum = entry.RewardSum.Add(rec.RewardAmount)
		}
	}

	out := make([]LevelStats, 0, len(byLevel))
	for _, entry := range byLevel {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VIPLevel < out[j].VIPLevel })
	return out, nil
}

func (s *InMemoryStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *InMemoryStore) Close() error { return nil }

func matches(rec Record, f Filter) bool {
	if f.Identity != "" && !strings.Contains(rec.Identity, f.Identity) {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.VIPLevel != 0 && rec.VIPLevel != f.VIPLevel {
		return false
	}
	if f.Operator != "" && rec.Operator != f.Operator {
		return false
	}
	return inRange(rec.CreatedAt, f.From, f.To)
}

// RFC3339 strings compare lexicographically in time order.
func inRange(createdAt, from, to string) bool {
	if from != "" && createdAt < from {
		return false
	}
	if to != "" && createdAt > to {
		return false
	}
	return true
}
