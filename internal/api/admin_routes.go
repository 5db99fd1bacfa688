package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kjannette/cryptovest-backend/internal/activity"
	"github.com/kjannette/cryptovest-backend/internal/ethereum"
	"github.com/kjannette/cryptovest-backend/internal/metrics"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/kjannette/cryptovest-backend/internal/session"
)

func (s *Server) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Dashboard.Overview(r.Context()))
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users := s.Dashboard.Users.Sorted()
	if limit := parseLimit(r, len(users)); limit < len(users) {
		users = users[:limit]
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleAdminLedger(kind models.LedgerKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		book := s.Dashboard.Investments
		if kind == models.KindWithdrawal {
			book = s.Dashboard.Withdrawals
		}
		entries := book.Sorted()

		if st := r.URL.Query().Get("status"); st != "" {
			status := models.Status(strings.ToLower(st))
			if status != models.StatusPending && status != models.StatusSuccess {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q, expected pending|success", st))
				return
			}
			filtered := make([]models.LedgerEntry, 0, len(entries))
			for _, e := range entries {
				if e.Status == status {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		if limit := parseLimit(r, len(entries)); limit < len(entries) {
			entries = entries[:limit]
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// handleAdminActivity serves the live window by default. With ?page= it
// reads a page of the full log from the database instead.
func (s *Server) handleAdminActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("page") {
		page, err := s.Activity.Page(r.Context(), nil, activity.ParsePagination(q.Get("page"), q.Get("limit")))
		if err != nil {
			writeServiceError(w, r, err, "failed to fetch activity")
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}

	rows := s.Dashboard.Activity.Sorted()
	if limit := parseLimit(r, len(rows)); limit < len(rows) {
		rows = rows[:limit]
	}
	writeJSON(w, http.StatusOK, rows)
}

type approveResponse struct {
	Entry   *models.LedgerEntry `json:"entry"`
	Message string              `json:"message"`
}

func (s *Server) handleApprove(kind models.LedgerKind) http.HandlerFunc {
	label := "Investment"
	if kind == models.KindWithdrawal {
		label = "Withdrawal"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		entry, err := s.Ledger.Approve(r.Context(), kind, id)
		if err != nil {
			writeServiceError(w, r, err, "Failed to approve "+strings.ToLower(label)+".")
			return
		}
		metrics.RecordApproval(string(kind))
		s.Dashboard.RecordEntry(kind, *entry)

		admin := session.FromContext(r.Context())
		log.WithField("kind", kind).WithField("id", id).WithField("admin", admin.UserID).Info("Ledger entry approved")
		if s.Notifier != nil {
			s.Notifier.SendAsync(fmt.Sprintf("%s #%d approved: %s %s", label, id, entry.Amount.String(), entry.Coin.Upper()))
		}
		writeJSON(w, http.StatusOK, approveResponse{Entry: entry, Message: label + " approved!"})
	}
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid user id %q", r.PathValue("id")))
		return
	}
	if admin := session.FromContext(r.Context()); admin.UserID == id {
		writeError(w, http.StatusBadRequest, "use DELETE /v1/me to delete your own account")
		return
	}
	if err := s.deleteAccount(r, id); err != nil {
		writeServiceError(w, r, err, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteAccount removes the profile, which cascades to the user's ledger
// and activity rows, then the auth user. Auth deletion failures are logged
// only since the profile is already gone. The dashboard drops the same
// rows the cascade removed.
func (s *Server) deleteAccount(r *http.Request, id uuid.UUID) error {
	ctx := r.Context()
	if err := s.Profiles.Delete(ctx, id); err != nil {
		return err
	}
	if s.Accounts != nil {
		if err := s.Accounts.DeleteUser(ctx, id.String()); err != nil {
			log.WithError(err).WithField("user_id", id).Warn("Failed to delete auth user")
		}
	}
	if s.Growth != nil {
		s.Growth.Drop(id)
		metrics.SetActiveProjections(s.Growth.Len())
	}
	s.Dashboard.RemoveUser(id)
	log.WithField("user_id", id).Info("Account deleted")
	return nil
}

type walletAddressInput struct {
	Coin    string `json:"coin"`
	Network string `json:"network"`
	Address string `json:"address"`
}

type upsertWalletRequest struct {
	Addresses []walletAddressInput `json:"addresses"`
}

// parseWalletAddresses skips blank addresses so a partial form never
// clears a stored one, and normalizes the rest per network.
func parseWalletAddresses(in []walletAddressInput) ([]models.WalletAddress, error) {
	var out []models.WalletAddress
	for _, a := range in {
		if strings.TrimSpace(a.Address) == "" {
			continue
		}
		coin, err := models.ParseSymbol(a.Coin)
		if err != nil {
			return nil, err
		}
		network, err := models.ParseNetwork(a.Network)
		if err != nil {
			return nil, err
		}
		addr, err := ethereum.NormalizeAddress(network, a.Address)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", coin.Upper(), network, err)
		}
		out = append(out, models.WalletAddress{Coin: coin, Network: network, Address: addr})
	}
	if len(out) == 0 {
		return nil, errors.New("No addresses provided.")
	}
	return out, nil
}

func (s *Server) handleUpsertWalletAddresses(w http.ResponseWriter, r *http.Request) {
	var req upsertWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addrs, err := parseWalletAddresses(req.Addresses)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	admin := session.FromContext(ctx)
	saved, err := s.Wallets.Upsert(ctx, addrs, admin.UserID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to update addresses.")
		return
	}

	if all, err := s.Wallets.List(ctx); err == nil {
		s.Dashboard.SetWallets(all)
	} else {
		log.WithError(err).Warn("Failed to refresh wallet addresses after upsert")
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleTruncateActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.Activity.Truncate(r.Context()); err != nil {
		writeServiceError(w, r, err, "failed to reset activity log")
		return
	}
	s.Dashboard.Activity.Replace(nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Dashboard.Load(r.Context()); err != nil {
		writeServiceError(w, r, err, "failed to reload dashboard")
		return
	}
	writeJSON(w, http.StatusOK, s.Dashboard.Overview(r.Context()))
}
