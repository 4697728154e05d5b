package orders

import (
	"crypto/rand"
	"time"
)

const (
	orderIDPrefix    = "ORD-"
	orderIDLayout    = "20060102150405"
	orderIDSuffixLen = 6
	base32Alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
)

// NewOrderID returns ORD-<yyyymmddHHMMSS>-<6 base32 chars> for the UTC time.
func NewOrderID(now time.Time) (string, error) {
	buf := make([]byte, orderIDSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	suffix := make([]byte, orderIDSuffixLen)
	for i, b := range buf {
		suffix[i] = base32Alphabet[int(b)%len(base32Alphabet)]
	}
	return orderIDPrefix + now.UTC().Format(orderIDLayout) + "-" + string(suffix), nil
}
