// Package midpay is the adapter for the Midpay payment provider. It owns the
// outbound HTTP API (charge, status check), notification signature
// verification, and the provider's PubNub push stream of transaction events.
package midpay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"concert-ticketing/internal/status"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

type Config struct {
	BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
	MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
	ClientID   string `json:"clientId" mapstructure:"client_id"`
	ClientKey  string `json:"clientKey" mapstructure:"client_key"`
	ServerKey  string `json:"serverKey" mapstructure:"server_key"`

	PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
	PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
	PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
	PNCipherKey string `json:"pn_cipherKey" mapstructure:"pn_cipherkey"`
}

// Midpay is a connected provider instance.
type Midpay struct {
	MerchantID string

	serverKey string

	sub    *subscribe
	client *Client
}

// TransactionRequest is the charge payload handed to the provider. Amounts
// are integer minor units rendered as decimals on the wire.
type TransactionRequest struct {
	OrderRef      string
	GrossAmount   decimal.Decimal
	CustomerID    string
	CustomerEmail string
	Items         []ItemDetail
}

type ItemDetail struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// TransactionToken is the provider's answer to a charge request: an opaque
// token plus the page the customer is redirected to.
type TransactionToken struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// New returns a connected Midpay instance. The access token is fetched up
// front and renewed in the background; the provider push channel is
// subscribed so transaction events flow even if webhooks are delayed.
func New(ctx context.Context, cfg *Config) (*Midpay, error) {
	client := newClient(ctx, &ClientConfig{
		BaseURL:   cfg.BaseURL,
		ClientID:  cfg.ClientID,
		ClientKey: cfg.ClientKey,
		ServerKey: cfg.ServerKey,
	})

	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	go client.notifyAccessTokenExpired(ctx)

	mp := &Midpay{
		MerchantID: cfg.MerchantID,
		serverKey:  cfg.ServerKey,
		client:     client,
	}

	if cfg.PNSubKey != "" {
		pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PNUUID))
		pnCfg.SubscribeKey = cfg.PNSubKey
		pnCfg.CipherKey = cfg.PNCipherKey

		sub, err := mp.newSubscription(ctx, pnCfg, cfg.PNChannel)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to Midpay's push channel: %v", err)
		}
		sub.pn.AddListener(sub.lis)
		mp.sub = sub
	}

	return mp, nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener

	// mu guards ch: it is set after the subscription goroutine is running.
	mu sync.Mutex
	ch chan *status.Transaction
}

func (s *subscribe) setTranChannel(ch chan *status.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = ch
}

func (s *subscribe) tranChannel() chan *status.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (m *Midpay) newSubscription(ctx context.Context, pnCfg *pubnub.Config, channel string) (*subscribe, error) {
	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}

	sub.pn.Subscribe().Channels([]string{channel}).Execute()

	go sub.processSubscription(ctx)

	return sub, nil
}

func (s *subscribe) processSubscription(ctx context.Context) {
	for {
		select {
		case st := <-s.lis.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to midpay push channel")
			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to midpay push channel")
			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from midpay push channel")
			default:
				log.Printf("midpay push channel status: %v", st.Category)
			}

		case message := <-s.lis.Message:
			raw, ok := message.Message.(string)
			if !ok {
				log.Printf("midpay push: unexpected message type %T", message.Message)
				continue
			}

			var p payload
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			tran, err := p.ToDomain()
			if err != nil {
				log.Println(err)
				continue
			}
			if ch := s.tranChannel(); ch != nil {
				ch <- tran
			}

		case <-ctx.Done():
			log.Println("close midpay subscription")
			return
		}
	}
}

// SetTranChannel sets the channel push-stream transaction events are
// delivered on.
func (m *Midpay) SetTranChannel(ch chan *status.Transaction) {
	if m.sub != nil {
		m.sub.setTranChannel(ch)
	}
}

// CreateTransaction opens a transaction at the provider for the given order
// and returns the token and redirect URL for the customer.
func (m *Midpay) CreateTransaction(ctx context.Context, req *TransactionRequest) (*TransactionToken, error) {
	return m.client.createTransaction(ctx, m.MerchantID, req)
}

// CheckTransaction queries the provider for the current transaction state of
// an external order reference. Used by the reconciliation fallback, never by
// the webhook path.
func (m *Midpay) CheckTransaction(ctx context.Context, orderRef string) (*status.Transaction, error) {
	return m.client.checkTransaction(ctx, orderRef)
}

// payload is the wire shape shared by the push stream, the check endpoint and
// the webhook notification body.
type payload struct {
	OrderRef          string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency"`
	SignatureKey      string `json:"signature_key"`
	TransactionTime   string `json:"transaction_time"`
}

func (p *payload) ToDomain() (*status.Transaction, error) {
	amount, err := decimal.NewFromString(p.GrossAmount)
	if err != nil {
		return nil, fmt.Errorf("midpay payload: gross_amount %q: %v", p.GrossAmount, err)
	}

	var ts time.Time
	if p.TransactionTime != "" {
		ts, err = time.ParseInLocation("2006-01-02 15:04:05", p.TransactionTime, time.Local)
		if err != nil {
			return nil, fmt.Errorf("midpay payload: transaction_time %q: %v", p.TransactionTime, err)
		}
	}

	return &status.Transaction{
		OrderRef:          p.OrderRef,
		TransactionID:     p.TransactionID,
		TransactionStatus: p.TransactionStatus,
		FraudStatus:       p.FraudStatus,
		StatusCode:        p.StatusCode,
		GrossAmount:       amount,
		Currency:          p.Currency,
		TransactionTime:   ts,
	}, nil
}
