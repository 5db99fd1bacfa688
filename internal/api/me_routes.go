package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kjannette/cryptovest-backend/internal/activity"
	"github.com/kjannette/cryptovest-backend/internal/growth"
	"github.com/kjannette/cryptovest-backend/internal/ledger"
	"github.com/kjannette/cryptovest-backend/internal/metrics"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/kjannette/cryptovest-backend/internal/session"
	"github.com/shopspring/decimal"
)

// --- profile ---

type updateProfileRequest struct {
	Name       *string `json:"name"`
	ProfilePic *string `json:"profile_pic"`
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	p, err := s.Profiles.Get(r.Context(), sess.UserID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch profile")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var in updateProfileRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "Display name is required.")
			return
		}
		in.Name = &name
	}
	if in.Name == nil && in.ProfilePic == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	sess := session.FromContext(r.Context())
	p, err := s.Profiles.Update(r.Context(), sess.UserID, in.Name, in.ProfilePic)
	if err != nil {
		writeServiceError(w, r, err, "failed to update profile")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	s.Dashboard.RecordProfile(*p)
	s.Activity.Log(r.Context(), sess.UserID, "profile_update", "User updated profile", clientIP(r))
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := s.deleteAccount(r, sess.UserID); err != nil {
		writeServiceError(w, r, err, "failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- balances & ledger ---

type balancesResponse struct {
	Balances ledger.Balances `json:"balances"`
	// Withdrawable is the set the withdrawal guard checks against, which
	// differs from Balances when only approved deposits count.
	Withdrawable ledger.Balances `json:"withdrawable"`
	Message      string          `json:"message,omitempty"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	investments, err := s.Ledger.ListByUser(ctx, models.KindInvestment, sess.UserID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch balances")
		return
	}
	withdrawals, err := s.Ledger.ListByUser(ctx, models.KindWithdrawal, sess.UserID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch balances")
		return
	}

	resp := balancesResponse{
		Balances:     ledger.Aggregate(investments, withdrawals),
		Withdrawable: s.guard.BalancesFrom(investments, withdrawals).Positive(),
	}
	if len(resp.Withdrawable) == 0 {
		resp.Message = "Nothing to withdraw yet. Invest now to start earning!"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLedger(kind models.LedgerKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		entries, err := s.Ledger.ListByUser(r.Context(), kind, sess.UserID)
		if err != nil {
			writeServiceError(w, r, err, "failed to fetch "+string(kind))
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

type ledgerRequest struct {
	Coin    string          `json:"coin"`
	Network string          `json:"network"`
	Amount  decimal.Decimal `json:"amount"`
}

type ledgerResponse struct {
	Entry   *models.LedgerEntry `json:"entry"`
	Message string              `json:"message"`
}

// parse validates the request shape. Nothing here touches the network or
// the database.
func (req ledgerRequest) parse() (models.Symbol, *models.Network, error) {
	coin, err := models.ParseSymbol(req.Coin)
	if err != nil {
		return "", nil, err
	}
	var network *models.Network
	if strings.TrimSpace(req.Network) != "" {
		n, err := models.ParseNetwork(req.Network)
		if err != nil {
			return "", nil, err
		}
		network = &n
	}
	if err := ledger.ValidateAmount(req.Amount); err != nil {
		return "", nil, err
	}
	return coin, network, nil
}

func (s *Server) handleCreateInvestment(w http.ResponseWriter, r *http.Request) {
	kind := string(models.KindInvestment)
	var req ledgerRequest
	if err := decodeJSON(r, &req); err != nil {
		metrics.RecordLedgerRequest(kind, "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	coin, network, err := req.parse()
	if err != nil {
		metrics.RecordLedgerRequest(kind, "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	sess := session.FromContext(ctx)
	entry, err := s.Ledger.Create(ctx, models.KindInvestment, &models.LedgerEntry{
		UserID:  sess.UserID,
		Coin:    coin,
		Network: network,
		Amount:  req.Amount,
	})
	if err != nil {
		writeServiceError(w, r, err, "failed to record deposit")
		return
	}
	metrics.RecordLedgerRequest(kind, "created")
	s.Dashboard.RecordEntry(models.KindInvestment, *entry)

	msg := fmt.Sprintf("Deposit of %s %s submitted. Waiting admin approval.", req.Amount.String(), coin.Upper())
	s.Activity.Log(ctx, sess.UserID, "investment", msg, clientIP(r))
	writeJSON(w, http.StatusCreated, ledgerResponse{Entry: entry, Message: msg})
}

func (s *Server) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	kind := string(models.KindWithdrawal)
	var req ledgerRequest
	if err := decodeJSON(r, &req); err != nil {
		metrics.RecordLedgerRequest(kind, "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	coin, network, err := req.parse()
	if err != nil {
		metrics.RecordLedgerRequest(kind, "invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	sess := session.FromContext(ctx)
	if err := s.guard.Check(ctx, sess.UserID, coin, req.Amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			metrics.RecordLedgerRequest(kind, "insufficient")
		}
		writeServiceError(w, r, err, "failed to check balance")
		return
	}

	entry, err := s.Ledger.Create(ctx, models.KindWithdrawal, &models.LedgerEntry{
		UserID:  sess.UserID,
		Coin:    coin,
		Network: network,
		Amount:  req.Amount,
	})
	if err != nil {
		writeServiceError(w, r, err, "failed to record withdrawal")
		return
	}
	metrics.RecordLedgerRequest(kind, "created")
	s.Dashboard.RecordEntry(models.KindWithdrawal, *entry)

	msg := fmt.Sprintf("Withdrawal request submitted for %s %s. Waiting admin approval.", req.Amount.String(), coin.Upper())
	s.Activity.Log(ctx, sess.UserID, "withdrawal", msg, clientIP(r))
	writeJSON(w, http.StatusCreated, ledgerResponse{Entry: entry, Message: msg})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	investments, err := s.Ledger.ListByUser(ctx, models.KindInvestment, sess.UserID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch transactions")
		return
	}
	withdrawals, err := s.Ledger.ListByUser(ctx, models.KindWithdrawal, sess.UserID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch transactions")
		return
	}

	history := ledger.History(investments, withdrawals)
	if limit := parseLimit(r, len(history)); limit < len(history) {
		history = history[:limit]
	}
	writeJSON(w, http.StatusOK, history)
}

// --- growth ---

func (s *Server) handleGrowth(w http.ResponseWriter, r *http.Request) {
	interval, err := growth.ParseInterval(r.URL.Query().Get("interval"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	sess := session.FromContext(ctx)
	investments, err := s.Ledger.ListByUser(ctx, models.KindInvestment, sess.UserID)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch investments")
		return
	}

	snap := s.Growth.Project(sess.UserID, investments, interval)
	metrics.SetActiveProjections(s.Growth.Len())
	writeJSON(w, http.StatusOK, snap)
}

// --- activity ---

func (s *Server) handleMyActivity(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	q := r.URL.Query()
	page, err := s.Activity.Page(r.Context(), &sess.UserID, activity.ParsePagination(q.Get("page"), q.Get("limit")))
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch activity")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
