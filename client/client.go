package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"AgentBounty/internal/bounty"
	"AgentBounty/internal/events"
	"AgentBounty/internal/registry"
	"AgentBounty/internal/types"
)

// Client connects to an AgentBounty node via HTTP.
type Client struct {
	baseURL string // baseURL is the node's API root (e.g. "http://127.0.0.1:8080")
}

// Wallet holds the keypair whose public key is the caller identity.
type Wallet struct {
	privKey ed25519.PrivateKey // privKey is the Ed25519 private key
	pubKey  ed25519.PublicKey  // pubKey is the Ed25519 public key
}

// Balance is an account balance as reported by the node.
type Balance struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// ListOptions filters GET /bounties. Zero values are omitted.
type ListOptions struct {
	Status  string        // Status is a status name ("open", "claimed", ...)
	Poster  *types.Pubkey // Poster restricts to one poster
	Claimer *types.Pubkey // Claimer restricts to one claimer
	Offset  int           // Offset skips matches
	Limit   int           // Limit caps the page
}

// NewClient creates a client for the node at nodeAddr.
// A bare host:port is treated as plain HTTP.
func NewClient(nodeAddr string) *Client {
	if !strings.Contains(nodeAddr, "://") {
		nodeAddr = "http://" + nodeAddr
	}

	return &Client{baseURL: strings.TrimRight(nodeAddr, "/")}
}

// NewWallet creates a new wallet with a random Ed25519 keypair.
func NewWallet() *Wallet {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)

	return &Wallet{
		privKey: priv,
		pubKey:  pub,
	}
}

// WalletFromKey wraps an existing private key.
func WalletFromKey(priv ed25519.PrivateKey) (*Wallet, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: %d", len(priv))
	}

	return &Wallet{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Pubkey returns the wallet's identity.
func (w *Wallet) Pubkey() types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], w.pubKey)
	return pk
}

// Health reports whether the node answers.
func (c *Client) Health() error {
	var resp map[string]string
	if err := c.get("/health", &resp); err != nil {
		return fmt.Errorf("health:\n%w", err)
	}

	if resp["status"] != "ok" {
		return fmt.Errorf("health: status %q", resp["status"])
	}

	return nil
}

// Deposit funds an account through the node's faucet.
func (c *Client) Deposit(account types.Pubkey, amount uint64) (uint64, error) {
	var resp Balance

	body := map[string]uint64{"amount": amount}
	if err := c.post("/accounts/"+account.String()+"/deposit", nil, body, &resp); err != nil {
		return 0, fmt.Errorf("deposit:\n%w", err)
	}

	return resp.Balance, nil
}

// Balance returns an account's spendable balance.
func (c *Client) Balance(account types.Pubkey) (uint64, error) {
	var resp Balance
	if err := c.get("/accounts/"+account.String(), &resp); err != nil {
		return 0, fmt.Errorf("get balance:\n%w", err)
	}

	return resp.Balance, nil
}

// Bounty returns a bounty and its escrow entry.
func (c *Client) Bounty(id uint64) (*bounty.Detail, error) {
	var detail bounty.Detail
	if err := c.get("/bounties/"+strconv.FormatUint(id, 10), &detail); err != nil {
		return nil, fmt.Errorf("get bounty:\n%w", err)
	}

	return &detail, nil
}

// Bounties returns one page of bounties.
func (c *Client) Bounties(opts ListOptions) ([]*bounty.Bounty, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Poster != nil {
		q.Set("poster", opts.Poster.String())
	}
	if opts.Claimer != nil {
		q.Set("claimer", opts.Claimer.String())
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/bounties"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Bounties []*bounty.Bounty `json:"bounties"`
	}
	if err := c.get(path, &resp); err != nil {
		return nil, fmt.Errorf("list bounties:\n%w", err)
	}

	return resp.Bounties, nil
}

// Stats returns protocol counters and custody totals.
func (c *Client) Stats() (*bounty.Stats, error) {
	var stats bounty.Stats
	if err := c.get("/stats", &stats); err != nil {
		return nil, fmt.Errorf("get stats:\n%w", err)
	}

	return &stats, nil
}

// Events returns up to limit event records after sequence number after.
func (c *Client) Events(after uint64, limit int) ([]*events.Record, error) {
	path := "/events?after=" + strconv.FormatUint(after, 10)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}

	var resp struct {
		Events []*events.Record `json:"events"`
	}
	if err := c.get(path, &resp); err != nil {
		return nil, fmt.Errorf("get events:\n%w", err)
	}

	return resp.Events, nil
}

// Audit runs the node's invariant audit. A report with violations is
// returned together with an *APIError carrying status 500.
func (c *Client) Audit() (*bounty.Report, error) {
	var report bounty.Report
	err := c.get("/audit", &report)

	if err != nil && report.Violations == nil {
		return nil, fmt.Errorf("audit:\n%w", err)
	}

	return &report, err
}

// Initialize creates the protocol singleton with w as authority.
func (w *Wallet) Initialize(c *Client) (*registry.Protocol, error) {
	var p registry.Protocol
	if err := c.post("/protocol/initialize", w, nil, &p); err != nil {
		return nil, fmt.Errorf("initialize:\n%w", err)
	}

	return &p, nil
}

// Create posts a bounty funded from w's account.
func (w *Wallet) Create(c *Client, params bounty.CreateParams) (*bounty.Receipt, error) {
	var receipt bounty.Receipt
	if err := c.post("/bounties", w, params, &receipt); err != nil {
		return nil, fmt.Errorf("create bounty:\n%w", err)
	}

	return &receipt, nil
}

// Claim claims an open bounty.
func (w *Wallet) Claim(c *Client, id uint64) (*bounty.Receipt, error) {
	return w.transition(c, id, "claim", nil)
}

// Submit submits evidence of the claimed work.
func (w *Wallet) Submit(c *Client, id uint64, submissionURL string) (*bounty.Receipt, error) {
	return w.transition(c, id, "submit", map[string]string{"submission_url": submissionURL})
}

// Approve releases the payout of a submitted bounty.
func (w *Wallet) Approve(c *Client, id uint64) (*bounty.Receipt, error) {
	return w.transition(c, id, "approve", nil)
}

// Cancel refunds an open bounty.
func (w *Wallet) Cancel(c *Client, id uint64) (*bounty.Receipt, error) {
	return w.transition(c, id, "cancel", nil)
}

// transition posts a lifecycle operation on bounty id.
func (w *Wallet) transition(c *Client, id uint64, op string, body any) (*bounty.Receipt, error) {
	var receipt bounty.Receipt

	path := "/bounties/" + strconv.FormatUint(id, 10) + "/" + op
	if err := c.post(path, w, body, &receipt); err != nil {
		return nil, fmt.Errorf("%s bounty %d:\n%w", op, id, err)
	}

	return &receipt, nil
}
