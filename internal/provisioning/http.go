// Package provisioning implements the default HTTP ProvisioningClient
// against the key-server JSON API, a post/getJSON helper shape with
// context propagation and a JWT bearer token attached to every request.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"axocore/internal/domain"
	"axocore/internal/errs"
)

// TokenSource mints (and, on 401, refreshes) the bearer token attached to
// every request. The default implementation signs a short-lived HS256 token
// locally; a deployment talking to a real key server supplies its own.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// HTTPClient is the default ProvisioningClient implementation.
type HTTPClient struct {
	base   string
	client *http.Client
	tokens TokenSource

	mu    sync.Mutex
	cache string
}

var _ domain.ProvisioningClient = (*HTTPClient)(nil)

// New builds an HTTPClient against base, a key-server base URL. If client
// is nil, http.DefaultClient is used with a 15s timeout clone.
func New(base string, client *http.Client, tokens TokenSource) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{base: base, client: client, tokens: tokens}
}

func (c *HTTPClient) ListDevices(ctx context.Context, user domain.Username) ([]domain.DeviceID, error) {
	var entries []domain.DeviceListEntry
	if err := c.getJSON(ctx, "/user/"+url.PathEscape(user.String())+"/devices", &entries); err != nil {
		return nil, err
	}
	out := make([]domain.DeviceID, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.DeviceID)
	}
	return out, nil
}

func (c *HTTPClient) FetchPreKeyBundle(ctx context.Context, user domain.Username, device domain.DeviceID) (domain.PreKeyBundle, error) {
	var bundle domain.PreKeyBundle
	path := "/user/" + url.PathEscape(user.String()) + "/prekey"
	if device != "" {
		path += "?device=" + url.QueryEscape(device.String())
	}
	if err := c.getJSON(ctx, path, &bundle); err != nil {
		return domain.PreKeyBundle{}, err
	}
	return bundle, nil
}

func (c *HTTPClient) PublishPreKeys(ctx context.Context, bundle domain.PreKeyBundle) error {
	return c.post(ctx, "/me/prekeys", bundle, nil)
}

func (c *HTTPClient) RegisterDevice(ctx context.Context, user domain.Username, device domain.DeviceID) error {
	payload := struct {
		User   domain.Username `json:"user"`
		Device domain.DeviceID `json:"device"`
	}{user, device}
	return c.post(ctx, "/me/device", payload, nil)
}

func (c *HTTPClient) RemoveDevice(ctx context.Context, user domain.Username, device domain.DeviceID) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/me/device/"+url.PathEscape(device.String()), nil)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, req, nil)
	return err
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return errs.Wrap(errs.Internal, "encode provisioning request", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(ctx, req, out)
	return err
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, req, out)
	return err
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body *bytes.Buffer) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body.Bytes())
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, errs.Wrap(errs.Http, "build provisioning request", err)
	}
	return req, nil
}

// do attaches the current bearer token, executes req, and retries once
// with a refreshed token on a 401. The token is minted on first use and
// refreshed only when the server rejects it.
func (c *HTTPClient) do(ctx context.Context, req *http.Request, out any) (int, error) {
	return c.doAuth(ctx, req, out, true)
}

func (c *HTTPClient) doAuth(ctx context.Context, req *http.Request, out any, refreshOn401 bool) (int, error) {
	token, err := c.currentToken(ctx)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errs.Wrap(errs.Transport, "provisioning request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil && refreshOn401 {
		fresh, err := c.tokens.Refresh(ctx)
		if err != nil {
			return resp.StatusCode, errs.Wrap(errs.Http, "refresh provisioning token", err)
		}
		c.mu.Lock()
		c.cache = fresh
		c.mu.Unlock()
		return c.doAuth(ctx, req.Clone(ctx), out, false)
	}

	if resp.StatusCode/100 != 2 {
		return resp.StatusCode, errs.WithSubCode(errs.Http, resp.StatusCode, fmt.Sprintf("provisioning: %s %s", req.Method, req.URL.Path), nil)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, errs.Wrap(errs.Internal, "decode provisioning response", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *HTTPClient) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.cache
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	if c.tokens == nil {
		return "", nil
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return "", errs.Wrap(errs.Http, "mint provisioning token", err)
	}
	c.mu.Lock()
	c.cache = tok
	c.mu.Unlock()
	return tok, nil
}
