package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"AgentBounty/internal/bounty"
	"AgentBounty/internal/events"
	"AgentBounty/internal/metrics"
	"AgentBounty/internal/storage"
	"AgentBounty/internal/types"
)

const testNow = int64(1_700_000_000)

var (
	authority = types.Derive([]byte("authority"))
	poster    = types.Derive([]byte("poster"))
	worker    = types.Derive([]byte("worker"))
)

// newTestServer builds a server over a fresh store with a fixed clock.
func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()

	db, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var observer []bounty.Option
	if reg, ok := opts.Gatherer.(*prometheus.Registry); ok {
		observer = append(observer, bounty.WithObserver(metrics.New(reg, nil)))
	}

	machine := bounty.New(db, append(observer, bounty.WithClock(func() time.Time { return time.Unix(testNow, 0) }))...)

	return New(":0", machine, opts)
}

// do sends a request through the router.
func do(t *testing.T, s *Server, method, path string, caller *types.Pubkey, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if caller != nil {
		req.Header.Set(callerHeader, caller.String())
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	return w
}

// decode parses a JSON response body.
func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()

	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
}

// expectError checks the status and rejection code of a failed request.
func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}

	var body ErrorBody
	decode(t, w, &body)

	if body.Code != code {
		t.Errorf("expected code %s, got %s (%s)", code, body.Code, body.Error)
	}
}

// bootstrap initializes the protocol, funds the poster and creates bounty 0.
func bootstrap(t *testing.T, s *Server) {
	t.Helper()

	if w := do(t, s, "POST", "/protocol/initialize", &authority, nil); w.Code != http.StatusCreated {
		t.Fatalf("initialize: %d %s", w.Code, w.Body.String())
	}

	if w := do(t, s, "POST", "/accounts/"+poster.String()+"/deposit", nil, depositRequest{Amount: 5_000_000_000}); w.Code != http.StatusOK {
		t.Fatalf("deposit: %d %s", w.Code, w.Body.String())
	}

	w := do(t, s, "POST", "/bounties", &poster, bounty.CreateParams{
		Title:          "Write docs",
		Description:    "Document the API",
		RewardLamports: 500_000_000,
		Deadline:       testNow + 3600,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})

	w := do(t, s, "GET", "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	decode(t, w, &resp)

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

// TestLifecycle_OverHTTP drives a bounty from creation to approval.
func TestLifecycle_OverHTTP(t *testing.T) {
	s := newTestServer(t, Options{Faucet: true})
	bootstrap(t, s)

	if w := do(t, s, "POST", "/bounties/0/claim", &worker, nil); w.Code != http.StatusOK {
		t.Fatalf("claim: %d %s", w.Code, w.Body.String())
	}

	if w := do(t, s, "POST", "/bounties/0/submit", &worker, submitRequest{SubmissionURL: "https://example.com/docs"}); w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}

	w := do(t, s, "POST", "/bounties/0/approve", &poster, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", w.Code, w.Body.String())
	}

	var receipt bounty.Receipt
	decode(t, w, &receipt)

	if receipt.Bounty.Status != bounty.StatusCompleted {
		t.Errorf("status = %s", receipt.Bounty.Status)
	}
	if receipt.Event.Kind != types.EventKindWorkApproved || receipt.Event.Amount != 487_500_000 || receipt.Event.Fee != 12_500_000 {
		t.Errorf("unexpected event %+v", receipt.Event)
	}
	if receipt.Escrow.Balance != 0 {
		t.Errorf("escrow = %d", receipt.Escrow.Balance)
	}

	w = do(t, s, "GET", "/accounts/"+worker.String(), nil, nil)
	var balance BalanceResponse
	decode(t, w, &balance)
	if balance.Balance != 487_500_000 {
		t.Errorf("worker balance = %d", balance.Balance)
	}

	w = do(t, s, "GET", "/bounties/0", nil, nil)
	var detail bounty.Detail
	decode(t, w, &detail)
	if detail.Bounty.Submission == nil || *detail.Bounty.Submission != "https://example.com/docs" {
		t.Errorf("submission = %v", detail.Bounty.Submission)
	}

	w = do(t, s, "GET", "/stats", nil, nil)
	var stats bounty.Stats
	decode(t, w, &stats)
	if stats.Protocol.TotalCompleted != 1 || stats.FeeVaultBalance != 12_500_000 || stats.Escrowed != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	w = do(t, s, "GET", "/events?after=1&limit=2", nil, nil)
	var page struct {
		Events []*events.Record `json:"events"`
		Count  int              `json:"count"`
	}
	decode(t, w, &page)
	if page.Count != 2 || page.Events[0].Kind != types.EventKindBountyClaimed || page.Events[1].Kind != types.EventKindWorkSubmitted {
		t.Errorf("unexpected event page %+v", page)
	}

	w = do(t, s, "GET", "/audit", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("audit: %d %s", w.Code, w.Body.String())
	}
}

// TestErrors verifies rejection classes map to status codes.
func TestErrors(t *testing.T) {
	s := newTestServer(t, Options{Faucet: true})
	bootstrap(t, s)

	tests := []struct {
		name   string
		method string
		path   string
		caller *types.Pubkey
		body   any
		status int
		code   string
	}{
		{"missing caller", "POST", "/bounties/0/claim", nil, nil, http.StatusBadRequest, codeMissingCaller},
		{"bad id", "POST", "/bounties/abc/claim", &worker, nil, http.StatusBadRequest, codeInvalidID},
		{"self claim", "POST", "/bounties/0/claim", &poster, nil, http.StatusForbidden, "CannotClaimOwnBounty"},
		{"unknown bounty", "GET", "/bounties/99", nil, nil, http.StatusNotFound, "BountyNotFound"},
		{"submit unclaimed", "POST", "/bounties/0/submit", &worker, submitRequest{SubmissionURL: "x"}, http.StatusConflict, "BountyNotClaimed"},
		{"approve open", "POST", "/bounties/0/approve", &poster, nil, http.StatusConflict, "WorkNotSubmitted"},
		{"cancel by stranger", "POST", "/bounties/0/cancel", &worker, nil, http.StatusForbidden, "NotBountyPoster"},
		{"title too long", "POST", "/bounties", &poster, bounty.CreateParams{Title: strings.Repeat("t", 101), RewardLamports: 500_000_000, Deadline: testNow + 10}, http.StatusBadRequest, "TitleTooLong"},
		{"unfunded poster", "POST", "/bounties", &worker, bounty.CreateParams{Title: "t", RewardLamports: 500_000_000, Deadline: testNow + 10}, http.StatusConflict, "InsufficientFunds"},
		{"unknown field", "POST", "/bounties", &poster, map[string]any{"title": "t", "reward": 1}, http.StatusBadRequest, codeInvalidBody},
		{"double initialize", "POST", "/protocol/initialize", &poster, nil, http.StatusConflict, "AlreadyInitialized"},
		{"bad status filter", "GET", "/bounties?status=expired", nil, nil, http.StatusBadRequest, codeInvalidQuery},
		{"negative offset", "GET", "/bounties?offset=-1", nil, nil, http.StatusBadRequest, codeInvalidQuery},
		{"bad pubkey", "GET", "/accounts/zz", nil, nil, http.StatusBadRequest, codeInvalidPubkey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.caller, tt.body)
			expectError(t, w, tt.status, tt.code)
		})
	}

	// Every rejection left bounty 0 untouched.
	w := do(t, s, "GET", "/bounties/0", nil, nil)
	var detail bounty.Detail
	decode(t, w, &detail)
	if detail.Bounty.Status != bounty.StatusOpen || detail.Escrow.Balance != 500_000_000 {
		t.Errorf("bounty changed by rejected requests: %+v %+v", detail.Bounty, detail.Escrow)
	}
}

// TestList_Query verifies filters reach the listing.
func TestList_Query(t *testing.T) {
	s := newTestServer(t, Options{Faucet: true})
	bootstrap(t, s)

	if w := do(t, s, "POST", "/bounties/0/cancel", &poster, nil); w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}

	tests := []struct {
		query string
		count int
	}{
		{"", 1},
		{"?status=open", 0},
		{"?status=cancelled", 1},
		{"?poster=" + poster.String(), 1},
		{"?claimer=" + worker.String(), 0},
		{"?offset=1", 0},
	}

	for _, tt := range tests {
		w := do(t, s, "GET", "/bounties"+tt.query, nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("list %q: %d %s", tt.query, w.Code, w.Body.String())
		}

		var resp struct {
			Bounties []*bounty.Bounty `json:"bounties"`
			Count    int              `json:"count"`
		}
		decode(t, w, &resp)

		if resp.Count != tt.count || len(resp.Bounties) != tt.count {
			t.Errorf("list %q: count %d, want %d", tt.query, resp.Count, tt.count)
		}
	}
}

// TestFaucetDisabled verifies deposits are not routed without the faucet.
func TestFaucetDisabled(t *testing.T) {
	s := newTestServer(t, Options{})

	w := do(t, s, "POST", "/accounts/"+poster.String()+"/deposit", nil, depositRequest{Amount: 1})
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected deposit to be unrouted, got %d", w.Code)
	}
}

// TestMetricsEndpoint verifies operations are exported.
func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Options{Faucet: true, Gatherer: prometheus.NewRegistry()})
	bootstrap(t, s)

	w := do(t, s, "GET", "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		`agentbounty_operations_total{op="create",result="ok"} 1`,
		`agentbounty_escrow_locked_lamports 5e+08`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

// TestStatusFor verifies every rejection class has a status.
func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind bounty.Kind
		want int
	}{
		{bounty.KindValidation, http.StatusBadRequest},
		{bounty.KindNotFound, http.StatusNotFound},
		{bounty.KindAuthorization, http.StatusForbidden},
		{bounty.KindState, http.StatusConflict},
		{bounty.KindTemporal, http.StatusConflict},
		{bounty.KindFunds, http.StatusConflict},
		{bounty.KindProtocol, http.StatusConflict},
		{bounty.KindIntegrity, http.StatusInternalServerError},
		{bounty.KindUnknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
