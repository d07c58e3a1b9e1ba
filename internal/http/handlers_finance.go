package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"carteira/internal/core"
	"carteira/internal/store"
)

// amountInput accepts a JSON number or a user-typed string such as "1.234,56".
// Numbers are plain decimals; only strings go through pt-BR separator rules.
type amountInput struct {
	text   string
	number bool
}

func (a *amountInput) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = amountInput{text: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = amountInput{text: n.String(), number: true}
	return nil
}

func (a amountInput) money() (core.Money, error) {
	if a.number {
		return core.ParseDecimalAmount(a.text)
	}
	return core.ParseAmount(a.text)
}

// moneyOrZero treats an absent amount as zero.
func (a amountInput) moneyOrZero() (core.Money, error) {
	if strings.Trim(strings.TrimSpace(a.text), "0.,") == "" {
		return core.Money{}, nil
	}
	return a.money()
}

type snapshotResponse struct {
	User         *core.User         `json:"user"`
	Transactions []core.Transaction `json:"transactions"`
	Goals        []core.Goal        `json:"goals"`
	Budgets      []core.Budget      `json:"budgets"`
	Totals       core.Totals        `json:"totals"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	st := sessionFrom(r.Context()).Store
	snap := st.Snapshot()
	resp := snapshotResponse{
		User:         snap.User,
		Transactions: snap.Transactions,
		Goals:        snap.Goals,
		Budgets:      snap.Budgets,
		Totals:       core.ComputeTotals(snap.Transactions),
	}
	if resp.Transactions == nil {
		resp.Transactions = []core.Transaction{}
	}
	if resp.Goals == nil {
		resp.Goals = []core.Goal{}
	}
	if resp.Budgets == nil {
		resp.Budgets = []core.Budget{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type profileRequest struct {
	Name              *string `json:"name"`
	BiometricsEnabled *bool   `json:"isBiometricsEnabled"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := sessionFrom(r.Context()).Store.UpdateProfile(r.Context(), store.ProfileUpdate{
		Name:              req.Name,
		BiometricsEnabled: req.BiometricsEnabled,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type transactionRequest struct {
	Amount         amountInput          `json:"amount"`
	Description    string               `json:"description"`
	Category       string               `json:"category"`
	Type           core.TransactionType `json:"type"`
	Date           string               `json:"date,omitempty"`
	IsSubscription bool                 `json:"isSubscription"`
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.Amount.money()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := s.parseDate(req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := sessionFrom(r.Context()).Store.AddTransaction(r.Context(), core.TransactionDraft{
		Amount:         amount,
		Description:    strings.TrimSpace(req.Description),
		Category:       strings.TrimSpace(req.Category),
		Type:           req.Type,
		Date:           date,
		IsSubscription: req.IsSubscription,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// parseDate accepts an empty string (now), a calendar date in the server
// location or an RFC 3339 timestamp.
func (s *Server) parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", v, s.loc); err == nil {
		return t.Add(12 * time.Hour), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, badRequest("Data inválida: use AAAA-MM-DD.")
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := sessionFrom(r.Context()).Store.DeleteTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type goalRequest struct {
	Title         string      `json:"title"`
	TargetAmount  amountInput `json:"targetAmount"`
	CurrentAmount amountInput `json:"currentAmount"`
	Icon          string      `json:"icon"`
}

func (s *Server) handleAddGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := req.TargetAmount.money()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	current, err := req.CurrentAmount.moneyOrZero()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := sessionFrom(r.Context()).Store.AddGoal(r.Context(), core.GoalDraft{
		Title:         strings.TrimSpace(req.Title),
		TargetAmount:  target,
		CurrentAmount: current,
		Icon:          req.Icon,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

type amountRequest struct {
	Amount amountInput `json:"amount"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.Amount.money()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := sessionFrom(r.Context()).Store.ContributeToGoal(r.Context(), chi.URLParam(r, "id"), amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type budgetRequest struct {
	Limit amountInput `json:"limit"`
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := req.Limit.moneyOrZero()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	category, err := url.PathUnescape(chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, r, badRequest("Categoria inválida."))
		return
	}
	b, err := sessionFrom(r.Context()).Store.UpdateBudget(r.Context(), category, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
