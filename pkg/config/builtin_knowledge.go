package config

import (
	"time"

	"github.com/ocintel/dispatch/pkg/models"
)

// builtinKnowledgeUpdated stamps the seed catalog; user-supplied entries
// carry their own timestamps.
var builtinKnowledgeUpdated = time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

func builtinKnowledge() []models.KnowledgeEntry {
	return []models.KnowledgeEntry{
		{
			ID:    "kb-password-reset",
			Title: "Password reset procedure",
			Content: map[string]string{
				"summary":   "Self-service reset flow and the manual fallback for locked accounts.",
				"procedure": "Send the self-service reset link first. If the customer is locked out of email too, verify identity with two account facts before a manual reset.",
			},
			AccessTier:  1,
			Tags:        []string{"account", "access"},
			Owner:       "support-ops",
			ReviewCycle: "quarterly",
			Version:     3,
			LastUpdated: builtinKnowledgeUpdated,
		},
		{
			ID:    "kb-refund-policy",
			Title: "Refund policy and limits",
			Content: map[string]string{
				"summary": "Tier 1 may refund up to $50 without approval; larger amounts require tier 3 sign-off.",
				"limits":  "tier1: $50, tier2: $200, tier3: $1000, above: tier 4 only",
			},
			AccessTier:  1,
			Tags:        []string{"billing", "policy"},
			Owner:       "support-ops",
			ReviewCycle: "quarterly",
			Version:     5,
			LastUpdated: builtinKnowledgeUpdated,
		},
		{
			ID:    "kb-vip-handling",
			Title: "VIP customer handling",
			Content: map[string]string{
				"summary": "VIP customers skip the standard queue weighting and get a named follow-up within one business day.",
			},
			AccessTier:  2,
			Tags:        []string{"vip", "process"},
			Owner:       "support-ops",
			ReviewCycle: "yearly",
			Version:     2,
			LastUpdated: builtinKnowledgeUpdated,
		},
		{
			ID:    "kb-crypto-tracing",
			Title: "Crypto tracing playbook",
			Content: map[string]string{
				"summary":   "First-hour actions for an active theft report.",
				"procedure": "Record destination address and transaction hash verbatim. Check the address against the known-mixer list. If funds are at a custodial exchange, open a freeze request through the exchange contact directory.",
			},
			AccessTier:  3,
			Tags:        []string{"crypto", "investigation"},
			Owner:       "investigations",
			ReviewCycle: "monthly",
			Version:     9,
			LastUpdated: builtinKnowledgeUpdated,
		},
		{
			ID:    "kb-exchange-contacts",
			Title: "Exchange contact directory",
			Content: map[string]string{
				"summary": "Law-enforcement and compliance contacts at the major exchanges, with expected response times for freeze requests.",
			},
			AccessTier:  3,
			Tags:        []string{"crypto", "contacts"},
			Owner:       "investigations",
			ReviewCycle: "monthly",
			Version:     14,
			LastUpdated: builtinKnowledgeUpdated,
		},
		{
			ID:    "kb-legal-hold",
			Title: "Legal hold procedure",
			Content: map[string]string{
				"summary":   "Steps when a customer mentions litigation or a formal complaint.",
				"procedure": "Stop all discretionary actions on the account, preserve the full conversation record, and notify legal within the escalation SLA. Only tier 4 may communicate further.",
			},
			AccessTier:  4,
			Tags:        []string{"legal", "compliance"},
			Owner:       "legal",
			ReviewCycle: "yearly",
			Version:     4,
			LastUpdated: builtinKnowledgeUpdated,
		},
	}
}
