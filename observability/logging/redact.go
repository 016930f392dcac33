package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credentials and account references in log output.
const RedactedValue = "[REDACTED]"

// loggableKeys may carry caller-supplied text without masking. Addresses and
// ledger ids are public on the API, so they stay readable.
var loggableKeys = map[string]struct{}{
	"service":      {},
	"env":          {},
	"component":    {},
	"error":        {},
	"reason":       {},
	"op":           {},
	"route":        {},
	"method":       {},
	"requestid":    {},
	"loanid":       {},
	"collateralid": {},
	"credentialid": {},
	"lender":       {},
	"borrower":     {},
	"asset":        {},
	"type":         {},
}

// sensitiveKeys are masked by the handler installed by Setup whatever the
// call site passed.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"secret":        {},
	"hmac_secret":   {},
	"passphrase":    {},
	"signature":     {},
	"account":       {},
	"accountref":    {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// MaskField logs value under key, masked unless key is a known loggable key.
// Empty values pass through so missing headers stay visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	if _, ok := loggableKeys[normalizeKey(key)]; ok {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[normalizeKey(attr.Key)]; !ok {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
