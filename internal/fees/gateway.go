package fees

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/pkg/errors"
	razorpay "github.com/razorpay/razorpay-go"
)

// Payment is the part of a gateway payment the service acts on.
type Payment struct {
	Status string // gateway status, "captured" on success
	Method string
	Amount float64 // rupees
}

// Gateway creates orders and looks up payments at the payment provider.
type Gateway interface {
	CreateOrder(amount float64, receipt string, notes map[string]interface{}) (string, error)
	FetchPayment(paymentID string) (*Payment, error)
	Key() string
}

type razorpayGateway struct {
	client *razorpay.Client
	key    string
}

func NewRazorpayGateway(key, secret string) Gateway {
	return &razorpayGateway{client: razorpay.NewClient(key, secret), key: key}
}

func (g *razorpayGateway) Key() string { return g.key }

func toPaise(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (g *razorpayGateway) CreateOrder(amount float64, receipt string, notes map[string]interface{}) (string, error) {
	order, err := g.client.Order.Create(map[string]interface{}{
		"amount":          toPaise(amount),
		"currency":        "INR",
		"receipt":         receipt,
		"payment_capture": 1,
		"notes":           notes,
	}, nil)
	if err != nil {
		return "", errors.Wrap(err, "razorpay order creation failed")
	}
	id, ok := order["id"].(string)
	if !ok {
		return "", errors.New("unable to extract order_id from Razorpay response")
	}
	return id, nil
}

func (g *razorpayGateway) FetchPayment(paymentID string) (*Payment, error) {
	p, err := g.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "razorpay payment fetch failed")
	}
	status, ok := p["status"].(string)
	if !ok {
		return nil, errors.New("invalid payment status format")
	}
	var paise float64
	switch v := p["amount"].(type) {
	case float64:
		paise = v
	case json.Number:
		paise, _ = v.Float64()
	default:
		return nil, fmt.Errorf("unsupported amount type: %T", v)
	}
	method, _ := p["method"].(string)
	if method == "" {
		method = "UNKNOWN"
	}
	return &Payment{Status: status, Method: method, Amount: paise / 100}, nil
}

// VerifySignature checks the checkout signature, an HMAC-SHA256 of
// "order_id|payment_id" keyed with the API secret.
func VerifySignature(secret, orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
