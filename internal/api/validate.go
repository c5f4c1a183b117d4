package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"AgentBounty/internal/bounty"
	"AgentBounty/internal/types"
)

const (
	// maxBodySize is the maximum request body size in bytes.
	maxBodySize = 64 << 10 // 64 KB

	// callerHeader carries the hex identity of the caller.
	callerHeader = "X-Caller"
)

// Request validation codes.
const (
	codeMissingCaller = "MissingCaller"
	codeInvalidCaller = "InvalidCaller"
	codeInvalidID     = "InvalidBountyID"
	codeInvalidBody   = "InvalidBody"
	codeInvalidQuery  = "InvalidQuery"
	codeInvalidPubkey = "InvalidPubkey"
)

// requestError is a malformed request, reported as 400 with code.
type requestError struct {
	code    string
	message string
}

func (e *requestError) Error() string {
	return e.message
}

// badRequest builds a requestError.
func badRequest(code, format string, args ...any) error {
	return &requestError{code: code, message: fmt.Sprintf(format, args...)}
}

// writeRequestError writes err, which is either a requestError or an operation failure.
func writeRequestError(w http.ResponseWriter, err error) {
	var re *requestError
	if errors.As(err, &re) {
		writeError(w, http.StatusBadRequest, re.code, re.message)
		return
	}

	writeFailure(w, err)
}

// parseCaller reads the caller identity from the X-Caller header.
func parseCaller(r *http.Request) (types.Pubkey, error) {
	raw := r.Header.Get(callerHeader)
	if raw == "" {
		return types.Pubkey{}, badRequest(codeMissingCaller, "missing %s header", callerHeader)
	}

	caller, err := types.ParsePubkey(raw)
	if err != nil {
		return types.Pubkey{}, badRequest(codeInvalidCaller, "invalid %s header: %v", callerHeader, err)
	}

	return caller, nil
}

// parseID reads the {id} path value.
func parseID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, badRequest(codeInvalidID, "invalid bounty id %q", r.PathValue("id"))
	}

	return id, nil
}

// parsePubkeyPath reads the {pubkey} path value.
func parsePubkeyPath(r *http.Request) (types.Pubkey, error) {
	pk, err := types.ParsePubkey(r.PathValue("pubkey"))
	if err != nil {
		return types.Pubkey{}, badRequest(codeInvalidPubkey, "invalid pubkey: %v", err)
	}

	return pk, nil
}

// decodeBody parses a JSON body into v, rejecting unknown fields and oversize bodies.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize+1))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return badRequest(codeInvalidBody, "invalid request body: %v", err)
	}

	if dec.More() {
		return badRequest(codeInvalidBody, "invalid request body: trailing data")
	}

	return nil
}

// parseFilter reads the list filter from the query string.
func parseFilter(r *http.Request) (bounty.Filter, error) {
	q := r.URL.Query()
	var f bounty.Filter

	if raw := q.Get("status"); raw != "" {
		status, err := bounty.ParseStatus(raw)
		if err != nil {
			return f, badRequest(codeInvalidQuery, "%v", err)
		}
		f.Status = &status
	}

	for _, p := range []struct {
		name string
		dst  **types.Pubkey
	}{
		{"poster", &f.Poster},
		{"claimer", &f.Claimer},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}

		pk, err := types.ParsePubkey(raw)
		if err != nil {
			return f, badRequest(codeInvalidQuery, "invalid %s: %v", p.name, err)
		}
		*p.dst = &pk
	}

	var err error
	if f.Offset, err = queryInt(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		return f, err
	}

	return f, nil
}

// queryInt parses a non-negative integer query parameter; empty means 0.
func queryInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest(codeInvalidQuery, "invalid %s %q", name, raw)
	}

	return n, nil
}
