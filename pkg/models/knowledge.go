package models

import "time"

// KnowledgeEntry is a catalog entry in the tier-gated knowledge base.
type KnowledgeEntry struct {
	ID      string            `json:"id"`
	Title   string            `json:"title"`
	Content map[string]string `json:"content"`
	// AccessTier is the minimum agent tier with read access.
	AccessTier  int       `json:"access_tier"`
	Tags        []string  `json:"tags,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	ReviewCycle string    `json:"review_cycle,omitempty"`
	Version     int       `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
}

// AnnotatedKnowledgeEntry is a knowledge entry with the caller-tier-derived
// permission flags attached.
type AnnotatedKnowledgeEntry struct {
	KnowledgeEntry
	CanEdit    bool `json:"can_edit"`
	CanApprove bool `json:"can_approve"`
}
