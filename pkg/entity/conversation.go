package entity

import (
	"time"

	"github.com/dyluth/weir/pkg/record"
)

// Conversation is a record-identity keyed, append-only entity: one record,
// one conversation. It is immutable after creation except for title
// backfill - a later record referencing the same conversation id may supply
// a title the original lacked. Lesson comments share this shape: they are
// conversation-like replies threaded by an "e" reference to their parent.
type Conversation struct {
	ID             string  `json:"id"`                  // Record identity
	ProjectAddress Address `json:"project_address"`     // From the "a" tag
	Title          string  `json:"title,omitempty"`     // Optional, backfillable
	Content        string  `json:"content"`             // Record content
	ParentID       string  `json:"parent_id,omitempty"` // "e" tag when this is a threaded reply
	CreatedAt      int64   `json:"created_at"`
}

// ConversationFromRecord derives a Conversation from a record. Total:
// a missing or malformed "a" tag yields the zero project address.
func ConversationFromRecord(r *record.Record) *Conversation {
	return &Conversation{
		ID:             r.ID,
		ProjectAddress: ParseAddress(r.TagValue("a")),
		Title:          r.TagValue("title"),
		Content:        r.Content,
		ParentID:       r.TagValue("e"),
		CreatedAt:      r.CreatedAt,
	}
}

// StoreKey returns the namespaced record identity of the conversation.
func (c *Conversation) StoreKey() string {
	return "conversation:" + c.ID
}

// StoreTimestamp returns the declared timestamp of the source record.
func (c *Conversation) StoreTimestamp() int64 {
	return c.CreatedAt
}

// MergeFrom keeps the original conversation intact apart from title
// backfill: content, project reference and creation time come from the
// first observed version, the title may be supplied later.
func (c *Conversation) MergeFrom(prev Entity) Entity {
	old, ok := prev.(*Conversation)
	if !ok {
		return c
	}

	merged := *old
	merged.Title = firstNonEmpty(old.Title, c.Title)
	return &merged
}

// ConversationDraft is the local mutation intent for starting a
// conversation within a project, optionally mentioning agents.
type ConversationDraft struct {
	CreatorID      string
	ProjectAddress Address
	Title          string
	Content        string
	MentionIDs     []string // Agent pubkeys to mention via "p" tags
}

// Record constructs the outgoing conversation record.
func (d ConversationDraft) Record(now time.Time) *record.Record {
	tags := [][]string{{"a", d.ProjectAddress.String()}}
	if d.Title != "" {
		tags = append(tags, []string{"title", d.Title})
	}
	for _, id := range d.MentionIDs {
		tags = append(tags, []string{"p", id})
	}

	return &record.Record{
		ID:        record.NewID(),
		Creator:   d.CreatorID,
		Kind:      record.KindConversation,
		CreatedAt: now.Unix(),
		Content:   d.Content,
		Tags:      tags,
	}
}
