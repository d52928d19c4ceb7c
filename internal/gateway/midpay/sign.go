package midpay

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"concert-ticketing/internal/status"
)

func randomNumber() (string, error) {
	min := big.NewInt(100000000000000000)
	max := big.NewInt(999999999999999999)
	n, err := rand.Int(rand.Reader, new(big.Int).Sub(max, min))
	if err != nil {
		return "", err
	}

	n.Add(n, min)
	return n.String(), nil
}

// Hmac256 signs outbound request bodies.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// NotificationSignature is the provider's checksum over a notification:
// SHA-512 of orderRef + statusCode + grossAmount + serverKey.
func NotificationSignature(orderRef, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderRef + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// DecodeNotification authenticates and decodes an inbound webhook body.
// A bad signature returns ErrUnauthorized and the payload must not be
// trusted; a malformed body returns ErrInvalidInput.
func (m *Midpay) DecodeNotification(raw []byte) (*status.Transaction, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: malformed notification body: %v", status.ErrInvalidInput, err)
	}
	if p.OrderRef == "" {
		return nil, fmt.Errorf("%w: notification without order_id", status.ErrInvalidInput)
	}

	expected := NotificationSignature(p.OrderRef, p.StatusCode, p.GrossAmount, m.serverKey)
	if !hmac.Equal([]byte(p.SignatureKey), []byte(expected)) {
		return nil, fmt.Errorf("%w: notification signature mismatch for order %s", status.ErrUnauthorized, p.OrderRef)
	}

	tran, err := p.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrInvalidInput, err)
	}
	return tran, nil
}
