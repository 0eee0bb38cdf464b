package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-dcb/core"
)

type statusChangeBody struct {
	Status string `json:"status"`
}

type patchItemBody struct {
	Item struct {
		Barcode string `json:"barcode"`
	} `json:"item"`
}

func transactionID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "transactionID"))
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req core.CreateTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	summary, err := h.service.CreateTransaction(r.Context(), transactionID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetStatus(r.Context(), transactionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) requestStatusChange(w http.ResponseWriter, r *http.Request) {
	var body statusChangeBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	target, err := core.ParseStatus(body.Status)
	if err != nil {
		h.writeError(w, r, apiValidationError("status", err.Error()))
		return
	}
	resp, err := h.service.RequestStatusChange(r.Context(), transactionID(r), target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) patchItemDetails(w http.ResponseWriter, r *http.Request) {
	var body patchItemBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Item.Barcode) == "" {
		h.writeError(w, r, apiValidationError("item.barcode", "barcode is required"))
		return
	}
	if err := h.service.PatchItemDetails(r.Context(), transactionID(r), body.Item.Barcode); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listStatusHistory(w http.ResponseWriter, r *http.Request) {
	query, err := historyQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.service.ListStatusHistory(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) renew(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Renew(r.Context(), transactionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) blockRenewal(w http.ResponseWriter, r *http.Request) {
	if err := h.service.BlockRenewal(r.Context(), transactionID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unblockRenewal(w http.ResponseWriter, r *http.Request) {
	if err := h.service.UnblockRenewal(r.Context(), transactionID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bootstrap answers 207 when some shared resources failed to provision.
func (h *Handler) bootstrap(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.BootstrapSharedResources(r.Context())
	if err != nil {
		if len(report.Resources) == 0 {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusMultiStatus, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func historyQuery(r *http.Request) (core.HistoryQuery, error) {
	values := r.URL.Query()
	var query core.HistoryQuery
	var err error
	if query.From, err = parseTime(values.Get("fromDate")); err != nil {
		return core.HistoryQuery{}, apiValidationError("fromDate", "must be an RFC 3339 timestamp")
	}
	if query.To, err = parseTime(values.Get("toDate")); err != nil {
		return core.HistoryQuery{}, apiValidationError("toDate", "must be an RFC 3339 timestamp")
	}
	if query.PageNumber, err = parseInt(values.Get("pageNumber")); err != nil {
		return core.HistoryQuery{}, apiValidationError("pageNumber", "must be an integer")
	}
	if query.PageSize, err = parseInt(values.Get("pageSize")); err != nil {
		return core.HistoryQuery{}, apiValidationError("pageSize", "must be an integer")
	}
	return query, nil
}

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}

func parseInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
