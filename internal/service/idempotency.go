package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/purrpawboutique/purr-paw-boutique/domain"
)

// checkoutKey is stable for identical checkout requests from one cart
// session within one time window, so a double-submitted checkout reaches the
// provider with the same idempotency key and gets the same session back.
// Anything sent to the provider that differs yields a different key. Without
// a cart session there is no shopper to scope the key to, and no key is used.
func checkoutKey(snap *domain.CartSnapshot, sessionID, email string, now time.Time, window time.Duration) string {
	if sessionID == "" {
		return ""
	}
	return "checkout-" + keyHash(sessionID, snap.Canonical(), strings.ToLower(strings.TrimSpace(email)),
		strconv.FormatInt(bucket(now, window), 10))
}

// intentKey follows the same rules as checkoutKey for payment intents.
func intentKey(sessionID string, amount int64, currency string, snap *domain.CartSnapshot, now time.Time, window time.Duration) string {
	if sessionID == "" {
		return ""
	}
	return "intent-" + keyHash(sessionID, strconv.FormatInt(amount, 10), currency, snap.Canonical(),
		strconv.FormatInt(bucket(now, window), 10))
}

func keyHash(parts ...string) string {
	d := xxhash.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = d.WriteString("|")
		}
		_, _ = d.WriteString(p)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

func bucket(now time.Time, window time.Duration) int64 {
	return now.UnixNano() / int64(window)
}
