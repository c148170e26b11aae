package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"vippanel/internal/platform"
	"vippanel/internal/settle"
	"vippanel/internal/tier"
)

type autoApproveRequest struct {
	Username string `json:"username"`
	Year     int    `json:"year"`
}

// number re-encodes a decimal as a bare JSON number for the wire.
func number(s string) json.Number { return json.Number(s) }

func (s *Server) handleAutoApprove(w http.ResponseWriter, r *http.Request) {
	var req autoApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		fail(w, http.StatusBadRequest, "Invalid username")
		return
	}

	result, err := s.settler.Settle(r.Context(), settle.Request{
		Identity: req.Username,
		Year:     req.Year,
	})
	if err != nil {
		var lookupErr *platform.LookupError
		if errors.As(err, &lookupErr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"message": lookupErr.Message,
				"error":   lookupErr.StatusCode,
			})
			return
		}
		s.logger.Error("settlement failed", slog.String("identity", req.Username), slog.String("error", err.Error()))
		fail(w, http.StatusBadRequest, "Could not fetch user information")
		return
	}

	switch result.Outcome {
	case settle.OutcomeAlreadyRewarded:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"approved": false,
			"message":  result.Message,
			"existingRecord": map[string]any{
				"id":         result.Existing.ID,
				"created_at": result.Existing.CreatedAt,
				"code_value": number(result.Existing.RewardAmount.String()),
				"vip_level":  result.Existing.VIPLevel,
			},
		})

	case settle.OutcomeIneligible:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"approved": false,
			"message":  result.Message,
			"userInfo": map[string]any{
				"username": result.Identity,
				"vipLevel": result.VIPLevel,
			},
		})

	case settle.OutcomeShortfall:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"approved": false,
			"message":  result.Message,
			"userInfo": map[string]any{
				"username": result.Identity,
				"vipLevel": result.VIPLevel,
				"vipRange": result.Bracket,
			},
			"requirement":    number(result.Required.Decimal.String()),
			"currentDeposit": number(result.Deposit.String()),
			"shortfall":      number(result.Deficit.String()),
		})

	case settle.OutcomeCreditFailed:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":     false,
			"approved":    false,
			"message":     result.Message,
			"errorDetail": result.CreditDetail,
			"data": map[string]any{
				"username":           result.Identity,
				"vipLevel":           result.VIPLevel,
				"vipRange":           result.Bracket,
				"codeValue":          number(result.Reward.String()),
				"totalDepositMonth1": number(result.Deposit.String()),
			},
		})

	case settle.OutcomeApproved:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"approved": true,
			"message":  result.Message,
			"data": map[string]any{
				"username":           result.Identity,
				"vipLevel":           result.VIPLevel,
				"vipRange":           result.Bracket,
				"codeValue":          number(result.Reward.String()),
				"totalDepositMonth1": number(result.Deposit.String()),
			},
		})

	default:
		fail(w, http.StatusInternalServerError, "Unexpected settlement outcome")
	}
}

func (s *Server) handleVIPInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    tier.Brackets(),
	})
}

func (s *Server) handleVIPInfoLevel(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil {
		fail(w, http.StatusBadRequest, "Invalid VIP level")
		return
	}

	info, ok := tier.InfoFor(level)
	if !ok {
		fail(w, http.StatusBadRequest, "VIP level must be between 1 and 60")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    info,
	})
}
