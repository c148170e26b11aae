package api

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vippanel/internal/ledger"
)

// recordView is the wire shape of a ledger row, matching the columns the
// dashboard table renders.
type recordView struct {
	ID             string          `json:"id"`
	Username       string          `json:"username"`
	VIPLevel       int             `json:"vip_level"`
	VIPRange       string          `json:"vip_range"`
	CodeValue      json.Number     `json:"code_value"`
	TotalDeposit   json.Number     `json:"total_deposit_month1"`
	Requirement    *json.Number    `json:"requirement"`
	Status         string          `json:"status"`
	Message        string          `json:"message"`
	AdminUsername  string          `json:"admin_username"`
	SnapshotDigest string          `json:"snapshot_digest,omitempty"`
	PartnerResp    json.RawMessage `json:"deposit_api_response,omitempty"`
	UserInfo       json.RawMessage `json:"user_info,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

func viewOf(rec ledger.Record, detailed bool) recordView {
	view := recordView{
		ID:            rec.ID,
		Username:      rec.Identity,
		VIPLevel:      rec.VIPLevel,
		VIPRange:      rec.Bracket,
		CodeValue:     number(rec.RewardAmount.String()),
		TotalDeposit:  number(rec.Deposit.String()),
		Status:        string(rec.Status),
		Message:       rec.Message,
		AdminUsername: rec.Operator,
		CreatedAt:     rec.CreatedAt,
	}
	if rec.Required.Valid {
		req := number(rec.Required.Decimal.String())
		view.Requirement = &req
	}
	if detailed {
		view.SnapshotDigest = rec.SnapshotDigest
		view.PartnerResp = rec.PartnerResponse
		view.UserInfo = rec.IdentitySnapshot
	}
	return view
}

func filterFromQuery(r *http.Request) ledger.Filter {
	q := r.URL.Query()
	f := ledger.Filter{
		Identity: q.Get("username"),
		Status:   ledger.Status(q.Get("status")),
		Operator: q.Get("admin_username"),
		From:     q.Get("startDate"),
		To:       q.Get("endDate"),
	}
	if level, err := strconv.Atoi(q.Get("vip_level")); err == nil {
		f.VIPLevel = level
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = limit
	}
	return f
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	page, err := s.store.List(filterFromQuery(r))
	if err != nil {
		fail(w, http.StatusInternalServerError, "Could not load history")
		return
	}

	views := make([]recordView, 0, len(page.Records))
	for _, rec := range page.Records {
		views = append(views, viewOf(rec, false))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    views,
		"pagination": map[string]any{
			"page":       page.Page,
			"limit":      page.Limit,
			"total":      page.Total,
			"totalPages": page.TotalPages,
		},
	})
}

func (s *Server) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		fail(w, http.StatusNotFound, "Record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    viewOf(rec, true),
	})
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.store.Delete(id)
	if err != nil {
		fail(w, http.StatusInternalServerError, "Could not delete record")
		return
	}
	if !deleted {
		fail(w, http.StatusNotFound, "Record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Record deleted",
		"data":    map[string]any{"id": id},
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("startDate")
	to := r.URL.Query().Get("endDate")

	stats, err := s.store.Stats(from, to)
	if err != nil {
		fail(w, http.StatusInternalServerError, "Could not load stats")
		return
	}
	byLevel, err := s.store.StatsByLevel(from, to)
	if err != nil {
		fail(w, http.StatusInternalServerError, "Could not load stats")
		return
	}

	levels := make([]map[string]any, 0, len(byLevel))
	for _, entry := range byLevel {
		levels = append(levels, map[string]any{
			"vip_level":      entry.VIPLevel,
			"vip_range":      entry.Bracket,
			"count":          entry.Count,
			"approved_count": entry.Approved,
			"total_rewarded": number(entry.RewardSum.String()),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"overview": map[string]any{
				"total_requests": stats.Total,
				"approved_count": stats.Approved,
				"rejected_count": stats.Rejected,
				"failed_count":   stats.Failed,
				"total_rewarded": number(stats.RewardSum.String()),
				"avg_reward":     number(stats.RewardAvg.String()),
			},
			"byVIP": levels,
		},
	})
}

// handleHistoryExport streams the filtered history as CSV. The export is
// capped at the maximum page size per request; the dashboard pages through
// larger ranges.
func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	f := filterFromQuery(r)
	if f.Limit == 0 {
		f.Limit = 200
	}
	page, err := s.store.List(f)
	if err != nil {
		fail(w, http.StatusInternalServerError, "Could not export history")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="decision-history.csv"`)

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"id", "username", "vip_level", "vip_range", "code_value",
		"total_deposit_month1", "requirement", "status", "message",
		"admin_username", "created_at",
	})
	for _, rec := range page.Records {
		required := ""
		if rec.Required.Valid {
			required = rec.Required.Decimal.String()
		}
		_ = writer.Write([]string{
			rec.ID,
			rec.Identity,
			strconv.Itoa(rec.VIPLevel),
			rec.Bracket,
			rec.RewardAmount.String(),
			rec.Deposit.String(),
			required,
			string(rec.Status),
			rec.Message,
			rec.Operator,
			rec.CreatedAt,
		})
	}
	writer.Flush()
}
