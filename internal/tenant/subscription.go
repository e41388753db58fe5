package tenant

import (
	"time"

	"github.com/yanizio/rentalshop/internal/registry"
)

// SubscriptionValid reports whether sub grants access at now.
//
//	nil, CANCELLED, PAST_DUE  → false
//	ACTIVE                    → CurrentPeriodEnd after now
//	TRIAL                     → TrialEndsAt (or CurrentPeriodEnd) after now
//	anything else             → false
func SubscriptionValid(sub *registry.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	switch sub.Status {
	case registry.SubscriptionActive:
		return sub.CurrentPeriodEnd.After(now)
	case registry.SubscriptionTrial:
		end := sub.CurrentPeriodEnd
		if sub.TrialEndsAt != nil {
			end = *sub.TrialEndsAt
		}
		return end.After(now)
	default:
		return false
	}
}
