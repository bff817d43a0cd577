package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePriority(t *testing.T) {
	tests := []struct {
		name     string
		tier     CustomerTier
		urgency  Urgency
		category string
		want     int
	}{
		{"standard baseline", CustomerTierStandard, UrgencyNormal, "billing", 1},
		{"premium", CustomerTierPremium, UrgencyNormal, "billing", 3},
		{"vip", CustomerTierVIP, UrgencyNormal, "billing", 4},
		{"high urgency", CustomerTierStandard, UrgencyHigh, "billing", 3},
		{"critical urgency", CustomerTierStandard, UrgencyCritical, "billing", 4},
		{"crypto theft", CustomerTierStandard, UrgencyNormal, "crypto_theft", 5},
		{"onboarding", CustomerTierStandard, UrgencyNormal, "onboarding", 2},
		{"vip critical crypto clamps at max", CustomerTierVIP, UrgencyCritical, "crypto_theft", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputePriority(tt.tier, tt.urgency, tt.category))
		})
	}
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, MinPriority, ClampPriority(0))
	assert.Equal(t, MinPriority, ClampPriority(-5))
	assert.Equal(t, 7, ClampPriority(7))
	assert.Equal(t, MaxPriority, ClampPriority(14))
}
