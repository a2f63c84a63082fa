package mpesa

import (
	"fmt"
	"strconv"
)

// Result codes Daraja reports in STK callbacks.
const (
	ResultSuccess   = 0
	ResultCancelled = 1032
)

// Callback is the body Daraja posts to the STK callback URL.
type Callback struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

func (cb *STKCallback) item(name string) (interface{}, bool) {
	for _, it := range cb.CallbackMetadata.Item {
		if it.Name == name {
			return it.Value, it.Value != nil
		}
	}
	return nil, false
}

// Receipt is the M-Pesa receipt number of a successful payment.
func (cb *STKCallback) Receipt() string {
	v, ok := cb.item("MpesaReceiptNumber")
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

// Amount is the paid amount, zero when absent.
func (cb *STKCallback) Amount() float64 {
	v, ok := cb.item("Amount")
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}
