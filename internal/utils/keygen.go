package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// GenerateReferenceNumber returns a human-quotable registration reference.
// Format: REG-YYYYMMDD-XXXXXXXX (Philippine date, 8 uppercase hex chars)
// Example: REG-20261015-1A2B3C4D
func GenerateReferenceNumber(now time.Time) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("REG-%s-%s", now.In(manila).Format("20060102"), strings.ToUpper(hex.EncodeToString(b))), nil
}
