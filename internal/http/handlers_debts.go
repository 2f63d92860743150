package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"famledger/internal/core"
	"famledger/internal/ledger"
)

// debtRefs names the account and category a debt's cash moves through.
// Clients send accountId/categoryId; account/category are accepted too.
type debtRefs struct {
	AccountID  core.Ref[core.Account]  `json:"accountId"`
	CategoryID core.Ref[core.Category] `json:"categoryId"`
	Account    core.Ref[core.Account]  `json:"account"`
	Category   core.Ref[core.Category] `json:"category"`
}

func (d debtRefs) accountID() string {
	if id := d.AccountID.ID(); id != "" {
		return id
	}
	return d.Account.ID()
}

func (d debtRefs) categoryID() string {
	if id := d.CategoryID.ID(); id != "" {
		return id
	}
	return d.Category.ID()
}

type debtRequest struct {
	debtRefs
	Person       string            `json:"person"`
	Type         core.DebtType     `json:"type"`
	Amount       core.Money        `json:"amount"`
	InterestRate decimal.Decimal   `json:"interestRate"`
	InterestType core.InterestType `json:"interestType"`
	Date         core.Date         `json:"date"`
	DueDate      core.Date         `json:"dueDate"`
	Description  string            `json:"description"`
}

// debtPatchRequest carries plain fields, which are copied as given, and
// terms (amount, interestRate, interestType), which re-amortize the debt.
type debtPatchRequest struct {
	Person          *string            `json:"person"`
	Description     *string            `json:"description"`
	DueDate         *core.Date         `json:"dueDate"`
	RemainingAmount *core.Money        `json:"remainingAmount"`
	Amount          *core.Money        `json:"amount"`
	InterestRate    *decimal.Decimal   `json:"interestRate"`
	InterestType    *core.InterestType `json:"interestType"`
}

type paymentRequest struct {
	debtRefs
	Amount      core.Money `json:"amount"`
	Date        core.Date  `json:"date"`
	Description string     `json:"description"`
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	f, err := ParseDebtFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, "list debts", err)
		return
	}
	debts, err := s.ledger.Debts.List(r.Context(), f)
	if err != nil {
		writeError(w, r, "list debts", err)
		return
	}
	if debts == nil {
		debts = []core.Debt{}
	}
	NewResponse().With("count", len(debts)).With("data", debts).Write(w)
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "create debt", err)
		return
	}
	var req debtRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create debt", err)
		return
	}

	d, err := s.ledger.Debts.Create(r.Context(), caller, ledger.DebtInput{
		Person:       sanitizeInput(req.Person),
		Type:         req.Type,
		Principal:    req.Amount,
		InterestRate: req.InterestRate,
		InterestType: req.InterestType,
		AccountID:    req.accountID(),
		CategoryID:   req.categoryID(),
		Date:         req.Date,
		DueDate:      req.DueDate,
		Description:  sanitizeInput(req.Description),
	})
	if err != nil {
		writeError(w, r, "create debt", err)
		return
	}
	NewResponse().Status(http.StatusCreated).With("data", d).Write(w)
}

func (s *Server) handleGetDebt(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "get debt", err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, "get debt", err)
		return
	}
	d, err := s.ledger.Debts.Get(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, "get debt", err)
		return
	}
	NewResponse().With("data", d).Write(w)
}

func (s *Server) handleUpdateDebt(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "update debt", err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, "update debt", err)
		return
	}
	var req debtPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "update debt", err)
		return
	}

	d, err := s.ledger.Debts.Update(r.Context(), caller, id, ledger.DebtPatch{
		Person:          sanitizePtr(req.Person),
		Description:     sanitizePtr(req.Description),
		DueDate:         req.DueDate,
		RemainingAmount: req.RemainingAmount,
		Terms: core.DebtTerms{
			Principal:    req.Amount,
			InterestRate: req.InterestRate,
			InterestType: req.InterestType,
		},
	})
	if err != nil {
		writeError(w, r, "update debt", err)
		return
	}
	NewResponse().With("data", d).Write(w)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "delete debt", err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, "delete debt", err)
		return
	}
	if err := s.ledger.Debts.Delete(r.Context(), caller, id); err != nil {
		writeError(w, r, "delete debt", err)
		return
	}
	NewResponse().Message("Debt deleted").Write(w)
}

func (s *Server) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "add payment", err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, "add payment", err)
		return
	}
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "add payment", err)
		return
	}

	d, t, err := s.ledger.Debts.AddPayment(r.Context(), caller, id, ledger.PaymentInput{
		Amount:      req.Amount,
		AccountID:   req.accountID(),
		CategoryID:  req.categoryID(),
		Date:        req.Date,
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		writeError(w, r, "add payment", err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		With("data", map[string]any{"debt": d, "transaction": t}).
		Write(w)
}
