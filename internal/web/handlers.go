package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/zombor/receipts-web/internal/backend"
	"github.com/zombor/receipts-web/internal/receipt"
)

// ErrReprocessDisabled is returned for a reprocess of a receipt the
// backend is still working on
var ErrReprocessDisabled = errors.New("receipt is still processing")

const (
	recentCount = 5

	msgReprocessDisabled = "This receipt is still processing. Reprocess is available once it finishes."
	msgReprocessed       = "Receipt reprocessed."
)

// handleDashboard renders the landing page
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view := dashboardView{}
	status := http.StatusOK

	all, err := s.receipts.ListReceipts(r.Context())
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		view.Error = backend.Message(err)
		status = http.StatusBadGateway
	}
	view.Stats = receipt.Summarize(all)
	view.Recent = receipt.Recent(all, recentCount)

	s.render(w, status, "dashboard", page{Title: "Dashboard", Nav: "dashboard", Body: view})
}

// handleList renders the filtered receipt list
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	filter := r.URL.Query().Get("status")
	if filter == "" {
		filter = receipt.StatusAll
	}

	view := listView{Query: query, Status: filter, Statuses: listStatuses}
	status := http.StatusOK

	all, err := s.receipts.ListReceipts(r.Context())
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		view.Error = backend.Message(err)
		view.RetryURL = "/receipts?" + url.Values{"q": {query}, "status": {filter}}.Encode()
		status = http.StatusBadGateway
	}
	view.Receipts = receipt.Filter(all, query, filter)

	s.render(w, status, "list", page{Title: "Receipts", Nav: "receipts", Body: view})
}

// handleDetail renders a single receipt
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.receipts.GetReceipt(r.Context(), id)
	if err != nil {
		slog.Error("Error fetching receipt", "id", id, "error", err)
		s.render(w, http.StatusBadGateway, "detail", page{Title: "Receipt", Nav: "receipts", Body: detailView{Error: backend.Message(err)}})
		return
	}
	s.render(w, http.StatusOK, "detail", page{Title: rec.MerchantName, Nav: "receipts", Body: detailView{Receipt: rec}})
}

// handleReprocess resubmits a receipt's file and renders the result in place.
// The receipt is fetched again first so a stale page cannot reprocess a
// receipt that has since gone back to processing. A submitted reprocess
// runs to completion even if the browser goes away.
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := context.WithoutCancel(r.Context())
	rec, err := s.receipts.GetReceipt(ctx, id)
	if err != nil {
		slog.Error("Error fetching receipt", "id", id, "error", err)
		s.render(w, http.StatusBadGateway, "detail", page{Title: "Receipt", Nav: "receipts", Body: detailView{Error: backend.Message(err)}})
		return
	}

	if !rec.Reprocessable() {
		slog.Info("Ignoring reprocess", "id", id, "reason", ErrReprocessDisabled)
		s.render(w, http.StatusConflict, "detail", page{Title: rec.MerchantName, Nav: "receipts", Body: detailView{Receipt: rec, Notice: msgReprocessDisabled}})
		return
	}

	updated, err := s.receipts.Reprocess(ctx, rec)
	if err != nil {
		slog.Error("Error reprocessing receipt", "id", id, "file_id", rec.FileID, "error", err)
		s.render(w, http.StatusBadGateway, "detail", page{Title: rec.MerchantName, Nav: "receipts", Body: detailView{Receipt: rec, Error: backend.Message(err)}})
		return
	}

	slog.Info("Reprocessed receipt", "id", id, "file_id", rec.FileID, "status", updated.Status)
	s.render(w, http.StatusOK, "detail", page{Title: updated.MerchantName, Nav: "receipts", Body: detailView{Receipt: updated, Notice: msgReprocessed}})
}

// handleAPIListReceipts returns the filtered canonical receipts
func (s *Server) handleAPIListReceipts(w http.ResponseWriter, r *http.Request) {
	all, err := s.receipts.ListReceipts(r.Context())
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		jsonError(w, backend.Message(err), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, receipt.Filter(all, r.URL.Query().Get("q"), r.URL.Query().Get("status")))
}

// handleAPIGetReceipt returns one canonical receipt
func (s *Server) handleAPIGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.receipts.GetReceipt(r.Context(), id)
	if err != nil {
		slog.Error("Error fetching receipt", "id", id, "error", err)
		jsonError(w, backend.Message(err), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleAPIStats returns the dashboard numbers
func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	all, err := s.receipts.ListReceipts(r.Context())
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		jsonError(w, backend.Message(err), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, receipt.Summarize(all))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
