package httpinterface

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/chainforge/forged/internal/core/application"
	"github.com/chainforge/forged/internal/core/domain"
)

// apiResponse is the envelope wrapping every API payload.
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type startNodeRequest struct {
	Chain    string  `json:"chain"`
	Instance string  `json:"instance"`
	Name     string  `json:"name,omitempty"`
	Port     int     `json:"port"`
	Accounts uint32  `json:"accounts"`
	Balance  float64 `json:"balance"`
}

type fundAccountRequest struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

type accountInfo struct {
	Index   uint32  `json:"index"`
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

type handler struct {
	svc application.OperatorService
}

func (h *handler) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.svc.ListNodes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nodes)
}

func (h *handler) getNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.svc.GetNode(r.Context(), r.PathValue("nodeId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, node)
}

func (h *handler) startNode(w http.ResponseWriter, r *http.Request) {
	var req startNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Instance == "" {
		req.Instance = "default"
	}

	reply, err := h.svc.StartNode(r.Context(), application.StartNodeRequest{
		Chain:      req.Chain,
		InstanceID: req.Instance,
		Name:       req.Name,
		Port:       req.Port,
		Accounts:   req.Accounts,
		Balance:    req.Balance,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, reply)
}

func (h *handler) stopNode(w http.ResponseWriter, r *http.Request) {
	reply, err := h.svc.StopNode(r.Context(), r.PathValue("nodeId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, reply)
}

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context(), r.PathValue("nodeId"))
	if err != nil {
		writeError(w, err)
		return
	}

	infos := make([]accountInfo, 0, len(accounts))
	for _, account := range accounts {
		infos = append(infos, accountInfo{
			Index:   account.Index,
			Address: account.Address,
			Balance: account.Balance,
		})
	}
	writeData(w, http.StatusOK, infos)
}

func (h *handler) fundAccount(w http.ResponseWriter, r *http.Request) {
	var req fundAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.svc.FundAccount(
		r.Context(), r.PathValue("nodeId"), req.Address, req.Amount,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, reply)
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.ListTransactions(r.Context(), r.PathValue("nodeId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, txs)
}

func (h *handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.GetTransaction(
		r.Context(), r.PathValue("nodeId"), r.PathValue("txid"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tx)
}

func (h *handler) checkHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.CheckHealth(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (h *handler) cleanupRegistry(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.CleanupRegistry(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, apiResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorStatus(w, statusOf(err), err.Error())
}

func writeErrorStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("could not write http response")
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrConfig),
		errors.Is(err, application.ErrInvalidAmount),
		errors.Is(err, application.ErrMissingAddress):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotSupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
