package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// ID prefixes used across the payments tables.
const (
	PaymentIDPrefix = "pay"
	RefundIDPrefix  = "ref"
)

// GenerateID generates a unique ID with the given prefix
func GenerateID(prefix string) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 10

	result := make([]byte, length)
	for i := range result {
		num, _ := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		result[i] = charset[num.Int64()]
	}

	return fmt.Sprintf("%s-%s", prefix, string(result))
}

// ValidatePaymentID validates the payment ID format
func ValidatePaymentID(paymentID string) bool {
	return len(paymentID) > len(PaymentIDPrefix)+1 && strings.HasPrefix(paymentID, PaymentIDPrefix+"-")
}
