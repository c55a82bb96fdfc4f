package entity

import (
	"time"

	"github.com/dyluth/weir/pkg/record"
)

// AgentProfile describes an agent definition published to the network:
// display name, markdown instructions and classification metadata. Profiles
// are addressable by the creator+record id combination and follow the
// non-destructive update rule.
type AgentProfile struct {
	ID            string   `json:"id"`                       // Record identity
	CreatorID     string   `json:"creator_id"`               // Signing pubkey
	DisplayName   string   `json:"display_name"`             // Value of the "title" tag
	Instructions  string   `json:"instructions"`             // Record content (markdown)
	Description   string   `json:"description,omitempty"`    // Value of the "description" tag
	Role          string   `json:"role,omitempty"`           // Value of the "role" tag
	UsageCriteria string   `json:"usage_criteria,omitempty"` // Value of the "use-criteria" tag
	Version       string   `json:"version,omitempty"`        // Value of the "ver" tag
	Labels        []string `json:"labels"`                   // Repeatable "t" tags, tag order
	CreatedAt     int64    `json:"created_at"`
}

// AgentProfileFromRecord derives an AgentProfile from a record.
func AgentProfileFromRecord(r *record.Record) *AgentProfile {
	return &AgentProfile{
		ID:            r.ID,
		CreatorID:     r.Creator,
		DisplayName:   r.TagValue("title"),
		Instructions:  r.Content,
		Description:   r.TagValue("description"),
		Role:          r.TagValue("role"),
		UsageCriteria: r.TagValue("use-criteria"),
		Version:       r.TagValue("ver"),
		Labels:        r.TagValues("t"),
		CreatedAt:     r.CreatedAt,
	}
}

// StoreKey returns the namespaced creator+record identity of the profile.
func (a *AgentProfile) StoreKey() string {
	return "agent:" + a.CreatorID + ":" + a.ID
}

// StoreTimestamp returns the declared timestamp of the source record.
func (a *AgentProfile) StoreTimestamp() int64 {
	return a.CreatedAt
}

// MergeFrom applies the non-destructive field update rule to every field.
func (a *AgentProfile) MergeFrom(prev Entity) Entity {
	old, ok := prev.(*AgentProfile)
	if !ok {
		return a
	}

	merged := *a
	merged.DisplayName = firstNonEmpty(a.DisplayName, old.DisplayName)
	merged.Instructions = firstNonEmpty(a.Instructions, old.Instructions)
	merged.Description = firstNonEmpty(a.Description, old.Description)
	merged.Role = firstNonEmpty(a.Role, old.Role)
	merged.UsageCriteria = firstNonEmpty(a.UsageCriteria, old.UsageCriteria)
	merged.Version = firstNonEmpty(a.Version, old.Version)
	merged.Labels = mergeList(a.Labels, old.Labels)
	return &merged
}

// AgentProfileDraft is the local mutation intent for publishing an agent
// definition. A refresh sets RefreshID to the profile's record identity.
type AgentProfileDraft struct {
	RefreshID     string
	CreatorID     string
	DisplayName   string
	Instructions  string
	Description   string
	Role          string
	UsageCriteria string
	Version       string
	Labels        []string
}

// Record constructs the outgoing agent profile record.
func (d AgentProfileDraft) Record(now time.Time) *record.Record {
	tags := [][]string{}
	if d.DisplayName != "" {
		tags = append(tags, []string{"title", d.DisplayName})
	}
	if d.Description != "" {
		tags = append(tags, []string{"description", d.Description})
	}
	if d.Role != "" {
		tags = append(tags, []string{"role", d.Role})
	}
	if d.UsageCriteria != "" {
		tags = append(tags, []string{"use-criteria", d.UsageCriteria})
	}
	if d.Version != "" {
		tags = append(tags, []string{"ver", d.Version})
	}
	for _, label := range d.Labels {
		tags = append(tags, []string{"t", label})
	}

	id := d.RefreshID
	if id == "" {
		id = record.NewID()
	}

	return &record.Record{
		ID:        id,
		Creator:   d.CreatorID,
		Kind:      record.KindAgentProfile,
		CreatedAt: now.Unix(),
		Content:   d.Instructions,
		Tags:      tags,
	}
}
