package http

import (
	"errors"
	"fmt"
	"net/http"

	"famledger/internal/core"
	"famledger/internal/ledger"
)

type accountRequest struct {
	Name           string           `json:"name"`
	Type           core.AccountType `json:"type"`
	OpeningBalance core.Money       `json:"openingBalance"`
	Currency       string           `json:"currency"`
	Icon           string           `json:"icon"`
	Color          string           `json:"color"`
	Description    string           `json:"description"`
}

type categoryRequest struct {
	Name          string            `json:"name"`
	Type          core.CategoryKind `json:"type"`
	MonthlyBudget core.Money        `json:"monthlyBudget"`
	Icon          string            `json:"icon"`
	Color         string            `json:"color"`
	Description   string            `json:"description"`
}

type balanceResponse struct {
	AccountID string     `json:"accountId"`
	Name      string     `json:"name"`
	Balance   core.Money `json:"balance"`
	Currency  string     `json:"currency"`
	IsActive  bool       `json:"isActive"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	includeInactive, err := parseBoolQuery(r.URL.Query(), "includeInactive")
	if err != nil {
		writeError(w, r, "list accounts", err)
		return
	}
	accounts, err := s.ledger.Directory.Accounts(r.Context(), includeInactive)
	if err != nil {
		writeError(w, r, "list accounts", err)
		return
	}
	if accounts == nil {
		accounts = []core.Account{}
	}
	NewResponse().With("count", len(accounts)).With("data", accounts).Write(w)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, "get account", err)
		return
	}
	a, err := s.ledger.Directory.Account(r.Context(), id)
	if err != nil {
		writeError(w, r, "get account", err)
		return
	}
	NewResponse().With("data", a).Write(w)
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, "account balance", err)
		return
	}
	a, err := s.ledger.Directory.Account(r.Context(), id)
	if err != nil {
		writeError(w, r, "account balance", err)
		return
	}
	NewResponse().With("data", balanceResponse{
		AccountID: a.ID,
		Name:      a.Name,
		Balance:   a.Balance,
		Currency:  a.Currency,
		IsActive:  a.IsActive,
	}).Write(w)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "create account", err)
		return
	}
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create account", err)
		return
	}

	a, err := s.ledger.Directory.CreateAccount(r.Context(), caller, ledger.AccountInput{
		Name:           sanitizeInput(req.Name),
		Type:           req.Type,
		OpeningBalance: req.OpeningBalance,
		Currency:       req.Currency,
		Icon:           req.Icon,
		Color:          req.Color,
		Description:    sanitizeInput(req.Description),
	})
	if err != nil {
		writeError(w, r, "create account", err)
		return
	}
	NewResponse().Status(http.StatusCreated).With("data", a).Write(w)
}

func (s *Server) handleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "deactivate account", err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, "deactivate account", err)
		return
	}
	if err := s.ledger.Directory.DeactivateAccount(r.Context(), caller, id); err != nil {
		writeError(w, r, "deactivate account", err)
		return
	}
	NewResponse().Message("Account deactivated").Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.ledger.Directory.Categories(r.Context())
	if err != nil {
		writeError(w, r, "list categories", err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	NewResponse().With("count", len(cats)).With("data", cats).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "create category", err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create category", err)
		return
	}

	c, err := s.ledger.Directory.CreateCategory(r.Context(), caller, ledger.CategoryInput{
		Name:          sanitizeInput(req.Name),
		Kind:          req.Type,
		MonthlyBudget: req.MonthlyBudget,
		Icon:          req.Icon,
		Color:         req.Color,
		Description:   sanitizeInput(req.Description),
	})
	if err != nil {
		writeError(w, r, "create category", err)
		return
	}
	NewResponse().Status(http.StatusCreated).With("data", c).Write(w)
}

// handleReconcile runs the balance audit. Drift is a finding, not a request
// failure, so a report with drift still answers 200 with clean=false.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "reconcile", err)
		return
	}
	if !caller.IsAdmin() {
		writeError(w, r, "reconcile", fmt.Errorf("%w: administrator role required", core.ErrForbidden))
		return
	}

	report, err := s.ledger.Reconciler.Run(r.Context())
	if err != nil && !(errors.Is(err, core.ErrConsistency) && !report.Clean()) {
		writeError(w, r, "reconcile", err)
		return
	}
	NewResponse().With("clean", report.Clean()).With("data", report).Write(w)
}
