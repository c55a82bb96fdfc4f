package entity

import (
	"time"

	"github.com/dyluth/weir/pkg/record"
)

// Project is the root addressable entity of the synchronization layer.
// A project is unique per creator+slug; later records with the same
// addressable identity refresh it in place. The core never deletes a
// project - liveness is a presentation-layer concern.
type Project struct {
	Address     Address  `json:"address"`               // kind:creator:slug identity
	CreatorID   string   `json:"creator_id"`            // Signing pubkey
	Slug        string   `json:"slug"`                  // Value of the "d" tag
	Title       string   `json:"title"`                 // Defaults to UntitledPlaceholder
	Description string   `json:"description,omitempty"` // Record content
	RepoURL     string   `json:"repo_url,omitempty"`    // Value of the "repo" tag
	AgentIDs    []string `json:"agent_ids"`             // Repeatable "agent" tags, tag order
	ToolIDs     []string `json:"tool_ids"`              // Repeatable "mcp" tags, tag order
	CreatedAt   int64    `json:"created_at"`            // Declared timestamp of source record
}

// ProjectFromRecord derives a Project from a record. Total: missing tags
// resolve to defaults (placeholder title, empty lists), never an error.
func ProjectFromRecord(r *record.Record) *Project {
	slug := r.TagValue("d")
	title := r.TagValue("title")
	if title == "" {
		title = UntitledPlaceholder
	}

	return &Project{
		Address:     NewAddress(r.Kind, r.Creator, slug),
		CreatorID:   r.Creator,
		Slug:        slug,
		Title:       title,
		Description: r.Content,
		RepoURL:     r.TagValue("repo"),
		AgentIDs:    r.TagValues("agent"),
		ToolIDs:     r.TagValues("mcp"),
		CreatedAt:   r.CreatedAt,
	}
}

// StoreKey returns the namespaced addressable identity of the project.
func (p *Project) StoreKey() string {
	return "project:" + p.Address.String()
}

// StoreTimestamp returns the declared timestamp of the source record.
func (p *Project) StoreTimestamp() int64 {
	return p.CreatedAt
}

// MergeFrom applies the non-destructive field update rule: a refreshed
// field is taken from the newer version only when it carries a non-empty
// value; absent fields never erase previously known values. Title is exempt
// because parsing already substitutes the placeholder - a placeholder title
// never overwrites a real one.
func (p *Project) MergeFrom(prev Entity) Entity {
	old, ok := prev.(*Project)
	if !ok {
		return p
	}

	merged := *p
	if merged.Title == UntitledPlaceholder && old.Title != UntitledPlaceholder {
		merged.Title = old.Title
	}
	merged.Description = firstNonEmpty(p.Description, old.Description)
	merged.RepoURL = firstNonEmpty(p.RepoURL, old.RepoURL)
	merged.AgentIDs = mergeList(p.AgentIDs, old.AgentIDs)
	merged.ToolIDs = mergeList(p.ToolIDs, old.ToolIDs)
	return &merged
}

// ProjectDraft is the local mutation intent for creating or refreshing a
// project. Building a record from a draft is deterministic given the draft
// and clock; transmission is delegated to the transport.
type ProjectDraft struct {
	CreatorID   string
	Slug        string
	Title       string
	Description string
	RepoURL     string
	AgentIDs    []string
	ToolIDs     []string
}

// Record constructs the outgoing record for this draft. Tag vocabulary
// mirrors ProjectFromRecord exactly.
func (d ProjectDraft) Record(now time.Time) *record.Record {
	tags := [][]string{{"d", d.Slug}}
	if d.Title != "" {
		tags = append(tags, []string{"title", d.Title})
	}
	if d.RepoURL != "" {
		tags = append(tags, []string{"repo", d.RepoURL})
	}
	for _, agentID := range d.AgentIDs {
		tags = append(tags, []string{"agent", agentID})
	}
	for _, toolID := range d.ToolIDs {
		tags = append(tags, []string{"mcp", toolID})
	}

	return &record.Record{
		ID:        record.NewID(),
		Creator:   d.CreatorID,
		Kind:      record.KindProject,
		CreatedAt: now.Unix(),
		Content:   d.Description,
		Tags:      tags,
	}
}
