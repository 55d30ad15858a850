// Package scanner is the client for the remote content-scanning service.
// The scanning engine itself is opaque: submit a release artifact, get back
// matched rules and an aggregate score.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mantisec/pkgwatch/monitor"
)

// HTTPClient talks to the scan API over HTTP with bearer-token auth. Tokens
// come from an OAuth password-grant endpoint and are refreshed on expiry.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
	// nil Limiter means unlimited
	Limiter *rate.Limiter

	Auth AuthConfig

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

type AuthConfig struct {
	TokenURL     string
	Audience     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

var _ monitor.Scanner = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, client *http.Client, limiter *rate.Limiter, auth AuthConfig) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{
		BaseURL: baseURL,
		Client:  client,
		Limiter: limiter,
		Auth:    auth,
	}
}

type scanRequest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	ArtifactURL string `json:"artifact_url"`
}

type scanResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Rules   []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Weight      int    `json:"weight"`
	} `json:"rules"`
	Score int `json:"score"`
}

// Scan submits one release artifact and returns the full result, or one of
// the package error classes. No partial result is ever returned.
func (c *HTTPClient) Scan(ctx context.Context, rel monitor.Release) (*monitor.ScanResult, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(scanRequest{
		Name:        rel.Name,
		Version:     rel.Version,
		ArtifactURL: rel.ArtifactURL,
	})
	if err != nil {
		return nil, err
	}

	var out scanResponse
	if err := c.do(ctx, http.MethodPost, "/scan", body, &out); err != nil {
		return nil, err
	}

	res := &monitor.ScanResult{
		Name:    rel.Name,
		Version: rel.Version,
		Score:   out.Score,
	}
	for _, r := range out.Rules {
		res.Hits = append(res.Hits, monitor.RuleHit{
			ID:          r.Name,
			Description: r.Description,
			Weight:      r.Weight,
		})
	}
	return res, nil
}

type reportRequest struct {
	Name                  string `json:"name"`
	Version               string `json:"version"`
	InspectorURL          string `json:"inspector_url,omitempty"`
	AdditionalInformation string `json:"additional_information,omitempty"`
	Recipient             string `json:"recipient,omitempty"`
}

// Report files a confirmed-malicious report with the scan service, so the
// upstream index can be notified through its own channel as well.
func (c *HTTPClient) Report(ctx context.Context, name, version, inspectorURL, info, recipient string) error {
	body, err := json.Marshal(reportRequest{
		Name:                  name,
		Version:               version,
		InspectorURL:          inspectorURL,
		AdditionalInformation: info,
		Recipient:             recipient,
	})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/report", body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", monitor.ErrScanTimeout, err)
		}
		return fmt.Errorf("%w: %v", monitor.ErrScanService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", monitor.ErrArtifactUnavailable, method, path)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", monitor.ErrScanService, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", monitor.ErrScanService, err)
	}
	return nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// bearerToken returns a valid token, fetching a fresh one when the cached
// token is missing or expired. With no TokenURL configured, auth is skipped.
func (c *HTTPClient) bearerToken(ctx context.Context) (string, error) {
	if c.Auth.TokenURL == "" {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiresAt) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"grant_type":    "password",
		"audience":      c.Auth.Audience,
		"client_id":     c.Auth.ClientID,
		"client_secret": c.Auth.ClientSecret,
		"username":      c.Auth.Username,
		"password":      c.Auth.Password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Auth.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetching token: %v", monitor.ErrScanService, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint status %d", monitor.ErrScanService, resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: decoding token: %v", monitor.ErrScanService, err)
	}

	c.token = tok.AccessToken
	// refresh a little early rather than racing the expiry
	c.tokenExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - 30*time.Second)
	return c.token, nil
}
