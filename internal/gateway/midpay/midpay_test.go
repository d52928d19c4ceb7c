package midpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"concert-ticketing/internal/status"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServerKey = "SB-server-key-0001"

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := newClient(context.Background(), &ClientConfig{
		BaseURL:   srv.URL,
		ClientID:  "client-1",
		ClientKey: "client-key",
		ServerKey: testServerKey,
	})
	client.setAccessToken("Bearer test-token")

	return client, srv
}

func TestClient_CreateTransaction(t *testing.T) {
	var gotAuth, gotHash string

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transactions", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("SignedHash")

		var body struct {
			OrderID     string `json:"order_id"`
			GrossAmount string `json:"gross_amount"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ref-123", body.OrderID)
		assert.Equal(t, "3250000", body.GrossAmount)

		fmt.Fprint(w, `{"status":"OK","data":{"token":"tok-1","redirect_url":"https://pay.midpay.test/tok-1"}}`)
	})

	client, _ := newTestClient(t, mux)

	token, err := client.createTransaction(context.Background(), "m-1", &TransactionRequest{
		OrderRef:    "ref-123",
		GrossAmount: decimal.NewFromInt(3250000),
		CustomerID:  "user-1",
		Items: []ItemDetail{
			{ID: "tt-a", Name: "VIP", Price: decimal.NewFromInt(2500000), Quantity: 1},
			{ID: "tt-b", Name: "Festival", Price: decimal.NewFromInt(750000), Quantity: 1},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "tok-1", token.Token)
	assert.Equal(t, "https://pay.midpay.test/tok-1", token.RedirectURL)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.NotEmpty(t, gotHash)
}

func TestClient_CreateTransaction_ServerErrorIsGatewayUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client, _ := newTestClient(t, mux)

	_, err := client.createTransaction(context.Background(), "m-1", &TransactionRequest{
		OrderRef:    "ref-500",
		GrossAmount: decimal.NewFromInt(1000),
	})

	assert.ErrorIs(t, err, status.ErrGatewayUnavailable)
}

func TestClient_CheckTransaction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transactions/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"OK","data":{
			"order_id":"ref-123",
			"transaction_id":"tx-9",
			"transaction_status":"settlement",
			"fraud_status":"accept",
			"status_code":"200",
			"gross_amount":"3250000",
			"currency":"IDR",
			"transaction_time":"2026-08-29 10:15:00"
		}}`)
	})

	client, _ := newTestClient(t, mux)

	tran, err := client.checkTransaction(context.Background(), "ref-123")
	require.NoError(t, err)

	assert.Equal(t, "ref-123", tran.OrderRef)
	assert.Equal(t, "settlement", tran.TransactionStatus)
	assert.Equal(t, "accept", tran.FraudStatus)
	assert.True(t, tran.GrossAmount.Equal(decimal.NewFromInt(3250000)))
}

func TestClient_CheckTransaction_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transactions/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"NOT_FOUND","message":"transaction doesn't exist"}`)
	})

	client, _ := newTestClient(t, mux)

	_, err := client.checkTransaction(context.Background(), "ref-missing")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestClient_CheckTransaction_UnauthorizedTogglesRefresher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/transactions/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client, _ := newTestClient(t, mux)

	_, err := client.checkTransaction(context.Background(), "ref-123")
	assert.Error(t, err)
	assert.Len(t, client.toggleTokenRefresher, 1)
}

func signedNotification(t *testing.T, orderRef, txStatus, fraud string) []byte {
	t.Helper()

	p := payload{
		OrderRef:          orderRef,
		TransactionID:     "tx-1",
		TransactionStatus: txStatus,
		FraudStatus:       fraud,
		StatusCode:        "200",
		GrossAmount:       "3250000",
		Currency:          "IDR",
		TransactionTime:   "2026-08-29 10:15:00",
	}
	p.SignatureKey = NotificationSignature(p.OrderRef, p.StatusCode, p.GrossAmount, testServerKey)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func TestDecodeNotification_ValidSignature(t *testing.T) {
	mp := &Midpay{serverKey: testServerKey}

	tran, err := mp.DecodeNotification(signedNotification(t, "ref-123", "settlement", "accept"))
	require.NoError(t, err)

	assert.Equal(t, "ref-123", tran.OrderRef)
	assert.Equal(t, "settlement", tran.TransactionStatus)
	assert.Equal(t, "accept", tran.FraudStatus)
}

func TestDecodeNotification_BadSignature(t *testing.T) {
	mp := &Midpay{serverKey: "a-different-server-key"}

	_, err := mp.DecodeNotification(signedNotification(t, "ref-123", "settlement", "accept"))
	assert.ErrorIs(t, err, status.ErrUnauthorized)
}

func TestDecodeNotification_MalformedBody(t *testing.T) {
	mp := &Midpay{serverKey: testServerKey}

	_, err := mp.DecodeNotification([]byte(`{"order_id":`))
	assert.ErrorIs(t, err, status.ErrInvalidInput)

	_, err = mp.DecodeNotification([]byte(`{}`))
	assert.ErrorIs(t, err, status.ErrInvalidInput)
}

func TestSetTranChannel(t *testing.T) {
	mp := &Midpay{}
	// Without a push subscription configured this is a no-op.
	mp.SetTranChannel(make(chan *status.Transaction, 1))

	mp.sub = &subscribe{}
	ch := make(chan *status.Transaction, 1)
	mp.SetTranChannel(ch)

	got := mp.sub.tranChannel()
	require.NotNil(t, got)
	got <- &status.Transaction{OrderRef: "ref-1"}
	assert.Equal(t, "ref-1", (<-ch).OrderRef)
}

func TestNotificationSignature_Deterministic(t *testing.T) {
	a := NotificationSignature("ref-1", "200", "1000", "key")
	b := NotificationSignature("ref-1", "200", "1000", "key")
	c := NotificationSignature("ref-1", "200", "1001", "key")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 128) // hex-encoded SHA-512
}
