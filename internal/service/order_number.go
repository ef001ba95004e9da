package service

import (
	"fmt"
	"time"
)

// orderNumber is the customer-facing reference, e.g. PPB-2026-483920, with
// the last six digits of the millisecond clock as suffix.
// It is not unique on its own; the order id is.
func orderNumber(now time.Time) string {
	return fmt.Sprintf("PPB-%d-%06d", now.Year(), now.UnixMilli()%1_000_000)
}
