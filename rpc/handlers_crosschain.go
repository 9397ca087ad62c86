package rpc

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	nativecommon "crosslend/native/common"
	"crosslend/native/crosschain"
)

type initiateOpRequest struct {
	TargetDomain uint64 `json:"targetDomain"`
	Initiator    string `json:"initiator"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	Op           string `json:"op"`
}

type requestPayload struct {
	MessageID    string `json:"messageId"`
	SourceDomain uint64 `json:"sourceDomain"`
	Initiator    string `json:"initiator"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	Op           string `json:"op"`
	Fulfilled    bool   `json:"fulfilled"`
	CreatedAt    string `json:"createdAt"`
}

func (s *Server) handleInitiateOp(w http.ResponseWriter, r *http.Request) {
	var req initiateOpRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	op, err := crosschain.ParseOpType(req.Op)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	messageID, err := s.reconciler.InitiateOp(r.Context(), req.TargetDomain, req.Initiator, req.Asset, amount, op)
	if err != nil {
		writeReconcilerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"messageId": messageID})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	request, err := s.reconciler.GetRequest(chi.URLParam(r, "id"))
	if err != nil {
		writeReconcilerError(w, err)
		return
	}
	if request == nil {
		writeError(w, http.StatusNotFound, errors.New("request not found"))
		return
	}
	writeJSON(w, http.StatusOK, requestPayload{
		MessageID:    request.MessageID,
		SourceDomain: request.SourceDomain,
		Initiator:    request.Initiator,
		Asset:        request.Asset,
		Amount:       bigString(request.Amount),
		Op:           request.Op.String(),
		Fulfilled:    request.Fulfilled,
		CreatedAt:    request.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain uint64 `json:"domain"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.reconciler.AddSupportedDomain(req.Domain); err != nil {
		writeReconcilerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"domain": req.Domain})
}

func (s *Server) handleListDomains(w http.ResponseWriter, _ *http.Request) {
	domains, err := s.reconciler.SupportedDomains()
	if err != nil {
		writeReconcilerError(w, err)
		return
	}
	if domains == nil {
		domains = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string][]uint64{"domains": domains})
}

// writeReconcilerError maps reconciler sentinels onto HTTP statuses.
func writeReconcilerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, crosschain.ErrUnknownDomain),
		errors.Is(err, crosschain.ErrUnknownOp),
		errors.Is(err, crosschain.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
