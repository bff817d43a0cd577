package models

// Priority bounds for the waiting queue.
const (
	MinPriority = 1
	MaxPriority = 10
)

// ClampPriority bounds p to [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// ComputePriority assigns the creation-time priority for a session from
// customer attributes and category:
//
//	base 1, +3 vip, +2 premium, +2 urgency=high, +3 urgency=critical,
//	+4 category=crypto_theft, +1 category=onboarding, clamped to [1,10].
func ComputePriority(tier CustomerTier, urgency Urgency, category string) int {
	p := 1
	switch tier {
	case CustomerTierVIP:
		p += 3
	case CustomerTierPremium:
		p += 2
	}
	switch urgency {
	case UrgencyHigh:
		p += 2
	case UrgencyCritical:
		p += 3
	}
	switch category {
	case "crypto_theft":
		p += 4
	case "onboarding":
		p++
	}
	return ClampPriority(p)
}
