package jdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"ticket-inventory/internal/status"
)

type ClientConfig struct {
	BaseURL   string `json:"baseUrl"`
	PartnerID string `json:"partnerId"`
	ClientID  string `json:"clientId"`
	ClientKey string `json:"clientKey"`
	HMACKey   string `json:"hmacKey"`
}

type Client struct {
	// baseURL is the base url of JDB backend.
	baseURL string

	partnerID string
	clientID  string
	clientKey string

	// hmacKey signs every request body.
	hmacKey string

	// accessToken is used to authenticate with JDB backend.
	accessToken string
	mu          sync.Mutex

	// toggleTokenRefresher is used to notify token refresher to refresh token.
	toggleTokenRefresher chan struct{}

	hc *http.Client
}

func newClient(c *ClientConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(c.BaseURL, "/"),
		partnerID: c.PartnerID,
		clientID:  c.ClientID,
		clientKey: c.ClientKey,
		hmacKey:   c.HMACKey,

		// buffered so a 401 never blocks the caller.
		toggleTokenRefresher: make(chan struct{}, 1),

		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// refreshAccessToken renews the token every 10 minutes, or as soon as a call
// reports 401, retrying with exponential backoff.
func (c *Client) refreshAccessToken(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.toggleTokenRefresher:
			slog.Info("JDB access token rejected, refreshing")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			if err == nil {
				c.setAccessToken(token)
				break Retry
			}

			slog.Warn("JDB token refresh failed", "error", err, "retry_in", backOff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backOff):
				backOff *= 2
			}
		}
	}
}

func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) requestUnauthorizedRefresh() {
	select {
	case c.toggleTokenRefresher <- struct{}{}:
	default:
	}
}

// connect authenticates with the JDB backend and returns the access token.
func (c *Client) connect(ctx context.Context) (string, error) {
	number, err := randomNumber()
	if err != nil {
		return "", fmt.Errorf("connectJDB: randomNumber: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"partnerId":%q,"clientId":%q,"clientScret":%q}`, number, c.partnerID, c.clientID, c.clientKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pro/dynamic/autenticate", bytes.NewReader([]byte(body)))
	if err != nil {
		return "", fmt.Errorf("connectJDB: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("connectJDB: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("connectJDB: resp.StatusCode: %d", resp.StatusCode)
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("connectJDB: json.Decode: %w", err)
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("connectJDB: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken), nil
}

// checkTransaction asks JDB for the transfer made against billNumber.
func (c *Client) checkTransaction(ctx context.Context, billNumber string) (*status.Transaction, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("checkTransactionJDB: randomNumber: %w", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"billNumber":%q}`, number, billNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pro/dynamic/checkTransaction", bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, fmt.Errorf("checkTransactionJDB: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkTransactionJDB: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.requestUnauthorizedRefresh()
		return nil, errors.New("checkTransactionJDB: resp.StatusCode: 401 => Unauthorized")
	}

	var reply struct {
		Message string  `json:"message"`
		Status  string  `json:"status"`
		Data    payload `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkTransactionJDB: json.Decode: %w", err)
	}
	if reply.Status != "OK" {
		if reply.Status == "NOT_FOUND" {
			return nil, status.ErrRefCodeNotFound
		}
		return nil, fmt.Errorf("checkTransactionJDB: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	transaction, err := reply.Data.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("checkTransactionJDB: reply.Data: %w", err)
	}
	return transaction, nil
}
