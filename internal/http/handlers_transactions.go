package http

import (
	"net/http"

	"famledger/internal/core"
	"famledger/internal/ledger"
)

// transactionRequest is the body of POST /api/transactions. References may
// be sent as ids or as populated objects.
type transactionRequest struct {
	Title         string                  `json:"title"`
	Amount        core.Money              `json:"amount"`
	Type          core.TransactionType    `json:"type"`
	Account       core.Ref[core.Account]  `json:"account"`
	ToAccount     core.Ref[core.Account]  `json:"toAccount"`
	Category      core.Ref[core.Category] `json:"category"`
	Date          core.Date               `json:"date"`
	Description   string                  `json:"description"`
	PaymentMethod core.PaymentMethod      `json:"paymentMethod"`
	Tags          []string                `json:"tags"`
}

func (req transactionRequest) input() ledger.TransactionInput {
	return ledger.TransactionInput{
		Title:         sanitizeInput(req.Title),
		Amount:        req.Amount,
		Type:          req.Type,
		AccountID:     req.Account.ID(),
		ToAccountID:   req.ToAccount.ID(),
		CategoryID:    req.Category.ID(),
		Date:          req.Date,
		Description:   sanitizeInput(req.Description),
		PaymentMethod: req.PaymentMethod,
		Tags:          req.Tags,
	}
}

// transactionPatchRequest is the body of PUT /api/transactions/{id}. Absent
// fields are left unchanged.
type transactionPatchRequest struct {
	Title         *string                  `json:"title"`
	Amount        *core.Money              `json:"amount"`
	Type          *core.TransactionType    `json:"type"`
	Account       *core.Ref[core.Account]  `json:"account"`
	ToAccount     *core.Ref[core.Account]  `json:"toAccount"`
	Category      *core.Ref[core.Category] `json:"category"`
	Date          *core.Date               `json:"date"`
	Description   *string                  `json:"description"`
	PaymentMethod *core.PaymentMethod      `json:"paymentMethod"`
	Tags          *[]string                `json:"tags"`
}

func (req transactionPatchRequest) patch() ledger.TransactionPatch {
	return ledger.TransactionPatch{
		Title:         sanitizePtr(req.Title),
		Amount:        req.Amount,
		Type:          req.Type,
		AccountID:     refID(req.Account),
		ToAccountID:   refID(req.ToAccount),
		CategoryID:    refID(req.Category),
		Date:          req.Date,
		Description:   sanitizePtr(req.Description),
		PaymentMethod: req.PaymentMethod,
		Tags:          req.Tags,
	}
}

func refID[T any](r *core.Ref[T]) *string {
	if r == nil {
		return nil
	}
	id := r.ID()
	return &id
}

type transferRequest struct {
	FromAccount core.Ref[core.Account]  `json:"fromAccount"`
	ToAccount   core.Ref[core.Account]  `json:"toAccount"`
	Amount      core.Money              `json:"amount"`
	Category    core.Ref[core.Category] `json:"category"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Date        core.Date               `json:"date"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseTransactionFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, "list transactions", err)
		return
	}
	txs, err := s.ledger.Transactions.List(r.Context(), f)
	if err != nil {
		writeError(w, r, "list transactions", err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewResponse().With("count", len(txs)).With("data", txs).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "create transaction", err)
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create transaction", err)
		return
	}

	t, err := s.ledger.Transactions.Create(r.Context(), caller, req.input())
	if err != nil {
		writeError(w, r, "create transaction", err)
		return
	}
	NewResponse().Status(http.StatusCreated).With("data", t).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "get transaction", err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, "get transaction", err)
		return
	}
	t, err := s.ledger.Transactions.Get(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, "get transaction", err)
		return
	}
	NewResponse().With("data", t).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "update transaction", err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, "update transaction", err)
		return
	}
	var req transactionPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "update transaction", err)
		return
	}

	t, err := s.ledger.Transactions.Update(r.Context(), caller, id, req.patch())
	if err != nil {
		writeError(w, r, "update transaction", err)
		return
	}
	NewResponse().With("data", t).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "delete transaction", err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, "delete transaction", err)
		return
	}
	if err := s.ledger.Transactions.Delete(r.Context(), caller, id); err != nil {
		writeError(w, r, "delete transaction", err)
		return
	}
	NewResponse().Message("Transaction deleted").Write(w)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, r, "transfer", err)
		return
	}
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "transfer", err)
		return
	}

	t, err := s.ledger.Transactions.Transfer(r.Context(), caller, ledger.TransferInput{
		FromAccountID: req.FromAccount.ID(),
		ToAccountID:   req.ToAccount.ID(),
		Amount:        req.Amount,
		CategoryID:    req.Category.ID(),
		Title:         sanitizeInput(req.Title),
		Description:   sanitizeInput(req.Description),
		Date:          req.Date,
	})
	if err != nil {
		writeError(w, r, "transfer", err)
		return
	}
	NewResponse().Status(http.StatusCreated).With("data", t).Message("Transfer completed").Write(w)
}
