package midpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"concert-ticketing/internal/status"
)

type ClientConfig struct {
	BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
	ClientID  string `json:"clientId" mapstructure:"client_id"`
	ClientKey string `json:"clientKey" mapstructure:"client_key"`
	ServerKey string `json:"serverKey" mapstructure:"server_key"`
}

type Client struct {
	// baseURL is the base url of the Midpay backend.
	baseURL string

	// clientID and clientKey authenticate this merchant backend.
	clientID  string
	clientKey string

	// serverKey signs outbound bodies and verifies inbound notifications.
	serverKey string

	// accessToken authenticates API calls once connected.
	accessToken string

	// mu guards accessToken.
	mu sync.Mutex

	// toggleTokenRefresher notifies the refresher loop after a 401.
	toggleTokenRefresher chan struct{}

	// hc is the http client. Gateway calls never hold a database
	// transaction open, so the timeout bounds total handler latency.
	hc *http.Client
}

func newClient(_ context.Context, c *ClientConfig) *Client {
	return &Client{
		baseURL:   c.BaseURL,
		clientID:  c.ClientID,
		clientKey: c.ClientKey,
		serverKey: c.ServerKey,

		// buffered so a 401 on the request path never blocks.
		toggleTokenRefresher: make(chan struct{}, 1),

		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired renews the access token periodically and after
// any 401, with an exponential backoff on failure.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
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

// connect authenticates with the Midpay backend and returns a bearer token.
func (c *Client) connect(ctx context.Context) (string, error) {
	number, err := randomNumber()
	if err != nil {
		return "", fmt.Errorf("connectMidpay: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"clientId":%q,"clientSecret":%q}`, number, c.clientID, c.clientKey)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/v2/auth/token"), bodyReader)
	if err != nil {
		return "", fmt.Errorf("connectMidpay: http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.serverKey)))

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("connectMidpay: http.Do: %w", status.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", errors.New("connectMidpay: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("connectMidpay: resp.StatusCode: %d", resp.StatusCode)
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", fmt.Errorf("connectMidpay: json.Decode: %v", err)
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("connectMidpay: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	accessToken := fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken)
	return accessToken, nil
}

// createTransaction opens a transaction at the Midpay backend.
func (c *Client) createTransaction(ctx context.Context, merchantID string, t *TransactionRequest) (*TransactionToken, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("createTransaction: randomNumber: %v", err)
	}

	chargeReq := struct {
		RequestID   string       `json:"requestId"`
		MerchantID  string       `json:"merchantId"`
		OrderID     string       `json:"order_id"`
		GrossAmount string       `json:"gross_amount"`
		CustomerID  string       `json:"customer_id"`
		Email       string       `json:"email,omitempty"`
		Items       []ItemDetail `json:"item_details"`
	}{
		RequestID:   number,
		MerchantID:  merchantID,
		OrderID:     t.OrderRef,
		GrossAmount: t.GrossAmount.String(),
		CustomerID:  t.CustomerID,
		Email:       t.CustomerEmail,
		Items:       t.Items,
	}

	body, err := json.Marshal(chargeReq)
	if err != nil {
		return nil, fmt.Errorf("createTransaction: json.Marshal: %v", err)
	}

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/v2/transactions"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("createTransaction: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256(body, []byte(c.serverKey)))
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("createTransaction: http.Do: %w", status.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("createTransaction: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("createTransaction: resp.StatusCode: %d: %w", resp.StatusCode, status.ErrGatewayUnavailable)
	}

	var reply struct {
		Message string `json:"message"`
		Status  string `json:"status"`
		Data    struct {
			Token       string `json:"token"`
			RedirectURL string `json:"redirect_url"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("createTransaction: json.Decode: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("createTransaction: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return &TransactionToken{
		Token:       reply.Data.Token,
		RedirectURL: reply.Data.RedirectURL,
	}, nil
}

// checkTransaction queries transaction state by external order reference.
func (c *Client) checkTransaction(ctx context.Context, orderRef string) (*status.Transaction, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"order_id":%q}`, number, orderRef)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/v2/transactions/status"), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.serverKey)))
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: http.Do: %w", status.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("checkTransaction: resp.StatusCode: 401 => Unauthorized")
	}

	var reply struct {
		Message string `json:"message"`
		Status  string `json:"status"`
		Data    struct {
			payload
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkTransaction: json.Decode: %v", err)
	}
	if reply.Status != "OK" {
		if reply.Status == "NOT_FOUND" {
			return nil, fmt.Errorf("checkTransaction: %q: %w", orderRef, status.ErrNotFound)
		}
		return nil, fmt.Errorf("checkTransaction: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	transaction, err := reply.Data.payload.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: reply.Data: %v", err)
	}

	return transaction, nil
}
