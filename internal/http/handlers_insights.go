package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"carteira/internal/advice"
	"carteira/internal/core"
	"carteira/internal/export"
	"carteira/internal/log"
	"carteira/internal/report"
)

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.DefaultCategories())
}

// handleReport serves the analysis for ?month=YYYY-MM, or the whole history
// when month is absent. ?format=markdown returns the rendered document.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var month time.Time
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := time.ParseInLocation("2006-01", v, s.loc)
		if err != nil {
			s.writeError(w, r, badRequest("Mês inválido: use AAAA-MM."))
			return
		}
		month = m
	}

	rep := report.Build(sessionFrom(r.Context()).Store.Snapshot(), month)
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Markdown(rep, s.currency)))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	txs := sessionFrom(r.Context()).Store.Snapshot().Transactions
	if len(txs) == 0 {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "empty", Message: "Não há transações para exportar."})
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, txs, s.loc); err != nil {
		s.writeError(w, r, fmt.Errorf("render csv: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(s.clock().In(s.loc))))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type archiveResponse struct {
	URI string `json:"uri"`
}

// handleArchiveExport stores the CSV in the configured bucket.
func (s *Server) handleArchiveExport(w http.ResponseWriter, r *http.Request) {
	if s.archiver == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "not_configured", Message: "Arquivamento de relatórios não configurado."})
		return
	}
	sess := sessionFrom(r.Context())
	uri, err := s.archiver.Upload(r.Context(), sess.UserID, sess.Store.Snapshot().Transactions, s.clock().In(s.loc))
	if errors.Is(err, export.ErrNoTransactions) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "empty", Message: "Não há transações para exportar."})
		return
	}
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Export archive failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "archive_failed", Message: "Não foi possível arquivar o relatório."})
		return
	}
	writeJSON(w, http.StatusCreated, archiveResponse{URI: uri})
}

type adviceResponse struct {
	Advice string `json:"advice"`
}

// handleAdvice never fails; the advice service substitutes a fallback.
func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	st := sessionFrom(r.Context()).Store
	tip := s.advice.Advise(r.Context(), sessionFrom(r.Context()).UserID,
		st.RecentTransactions(advice.RecentLimit), st.Snapshot().Goals)
	writeJSON(w, http.StatusOK, adviceResponse{Advice: tip})
}
