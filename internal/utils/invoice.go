package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	InvoicePrefix = "INV"
	BookingPrefix = "BKG"
)

// GenerateInvoiceNumber returns e.g. INV-20261015-9f3a1c07b2.
func GenerateInvoiceNumber() string {
	return generateNumber(InvoicePrefix, time.Now())
}

// GenerateBookingNumber returns e.g. BKG-20261015-4be01d9a7c.
func GenerateBookingNumber() string {
	return generateNumber(BookingPrefix, time.Now())
}

func generateNumber(tag string, now time.Time) string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		// fallback: time-based entropy
		n := now.UnixNano()
		for i := range buf {
			buf[i] = byte(n >> (8 * i))
		}
	}

	return fmt.Sprintf("%s-%s-%s", tag, now.UTC().Format("20060102"), hex.EncodeToString(buf))
}
