package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"AgentBounty/internal/bounty"
	"AgentBounty/internal/logger"
	"AgentBounty/internal/types"
)

// submitRequest is the body of POST /bounties/{id}/submit.
type submitRequest struct {
	SubmissionURL string `json:"submission_url"`
}

// depositRequest is the body of POST /accounts/{pubkey}/deposit.
type depositRequest struct {
	Amount uint64 `json:"amount"`
}

// BalanceResponse is the body of account queries.
type BalanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// handleInitialize handles POST /protocol/initialize. The caller becomes the authority.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller, err := parseCaller(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	p, err := s.machine.Initialize(caller)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// handleCreate handles POST /bounties.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := parseCaller(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	var params bounty.CreateParams
	if err := decodeBody(r, &params); err != nil {
		writeRequestError(w, err)
		return
	}

	receipt, err := s.machine.Create(caller, params)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// handleClaim handles POST /bounties/{id}/claim.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.machine.Claim)
}

// handleApprove handles POST /bounties/{id}/approve.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.machine.Approve)
}

// handleCancel handles POST /bounties/{id}/cancel.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.machine.Cancel)
}

// handleSubmit handles POST /bounties/{id}/submit.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	s.transition(w, r, func(id uint64, caller types.Pubkey) (*bounty.Receipt, error) {
		return s.machine.Submit(id, caller, req.SubmissionURL)
	})
}

// transition parses the bounty id and caller, then applies op.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(uint64, types.Pubkey) (*bounty.Receipt, error)) {
	id, err := parseID(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	caller, err := parseCaller(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	receipt, err := op(id, caller)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleList handles GET /bounties.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	bounties, err := s.machine.List(filter)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bounties": bounties,
		"count":    len(bounties),
	})
}

// handleGet handles GET /bounties/{id}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	detail, err := s.machine.Get(id)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// handleStats handles GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.machine.Stats()
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleBalance handles GET /accounts/{pubkey}.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parsePubkeyPath(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	balance, err := s.machine.Balance(account)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{Account: account.String(), Balance: balance})
}

// handleDeposit handles POST /accounts/{pubkey}/deposit.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	account, err := parsePubkeyPath(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	balance, err := s.machine.Deposit(account, req.Amount)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{Account: account.String(), Balance: balance})
}

// handleEvents handles GET /events?after=&limit=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var after uint64
	if raw := q.Get("after"); raw != "" {
		var err error
		if after, err = strconv.ParseUint(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, fmt.Sprintf("invalid after %q", raw))
			return
		}
	}

	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		writeRequestError(w, err)
		return
	}
	if limit == 0 || limit > bounty.MaxListLimit {
		limit = bounty.MaxListLimit
	}

	recs, err := s.machine.Events(after, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": recs,
		"count":  len(recs),
	})
}

// handleAudit handles GET /audit. A report with violations is served as 500.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.machine.Audit()
	if err != nil {
		writeFailure(w, err)
		return
	}

	status := http.StatusOK
	if !report.OK() {
		logger.Error("invariant audit failed", "violations", len(report.Violations))
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, report)
}

// handleStream handles GET /events/stream as server-sent events. Records
// committed after the request arrives are delivered until the client
// disconnects; a client that falls behind misses records and should
// resume from GET /events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("stream without write deadline override", "error", err)
	}

	ch, cancel := s.bus.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}

			data, err := json.Marshal(rec)
			if err != nil {
				logger.Error("encode event", "error", err)
				continue
			}

			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", rec.Seq, rec.Name(), data); err != nil {
				return
			}

			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
