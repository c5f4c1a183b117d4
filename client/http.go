package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// callerHeader carries the caller identity.
const callerHeader = "X-Caller"

// httpClient is shared by every Client.
var httpClient = &http.Client{Timeout: 15 * time.Second}

// APIError is a request the node refused.
type APIError struct {
	Status  int    // Status is the HTTP status code
	Code    string // Code is the stable rejection name, e.g. "BountyNotOpen"
	Kind    string // Kind is the rejection class, e.g. "state"
	Message string // Message is the node's explanation
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s): %s", e.Code, e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// IsCode reports whether err is an APIError with the given rejection code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// get performs a GET request and decodes the JSON response.
func (c *Client) get(path string, result any) error {
	return c.do(http.MethodGet, path, nil, nil, result)
}

// post performs a POST request as w (nil for anonymous) with a JSON body.
func (c *Client) post(path string, w *Wallet, body, result any) error {
	return c.do(http.MethodPost, path, w, body, result)
}

// do sends one request. On a non-2xx status the body is decoded as an
// error; for an audit report the result is filled as well.
func (c *Client) do(method, path string, w *Wallet, body, result any) error {
	var reader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body:\n%w", err)
		}
		reader = bytes.NewReader(jsonBytes)
	}

	url := c.baseURL + path

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("%s %s:\n%w", method, url, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if w != nil {
		req.Header.Set(callerHeader, w.Pubkey().String())
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s:\n%w", method, url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body:\n%w", method, url, err)
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return json.Unmarshal(data, result)
	}

	var errBody struct {
		Error string `json:"error"`
		Code  string `json:"code"`
		Kind  string `json:"kind"`
	}
	json.Unmarshal(data, &errBody)

	apiErr := &APIError{
		Status:  resp.StatusCode,
		Code:    errBody.Code,
		Kind:    errBody.Kind,
		Message: errBody.Error,
	}

	if apiErr.Message == "" && apiErr.Code == "" {
		// Not an error body (e.g. a failing audit report).
		json.Unmarshal(data, result)
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}
