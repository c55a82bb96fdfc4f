package entity

import (
	"encoding/json"
	"time"

	"github.com/dyluth/weir/pkg/record"
)

// Lesson is a record-identity keyed, immutable entity: a learning an agent
// publishes against a project. Content is carried as JSON {title, content};
// non-JSON content degrades to raw text with the "title" tag as fallback -
// parsing never fails. Comments on a lesson are conversation-like reply
// records threaded by an "e" reference (see ConversationFromRecord).
type Lesson struct {
	ID             string  `json:"id"`         // Record identity
	AgentID        string  `json:"agent_id"`   // Signing pubkey of the agent
	ProjectAddress Address `json:"project_address"`
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	CreatedAt      int64   `json:"created_at"`
}

// lessonPayload is the schema-checked JSON shape of a lesson's content.
type lessonPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// LessonFromRecord derives a Lesson from a record. JSON content supplies
// title and body; anything that does not decode is kept as raw text, with
// the "title" tag as the title fallback.
func LessonFromRecord(r *record.Record) *Lesson {
	title := r.TagValue("title")
	content := r.Content

	var payload lessonPayload
	if err := json.Unmarshal([]byte(r.Content), &payload); err == nil {
		if payload.Title != "" {
			title = payload.Title
		}
		if payload.Content != "" {
			content = payload.Content
		}
	}

	return &Lesson{
		ID:             r.ID,
		AgentID:        r.Creator,
		ProjectAddress: ParseAddress(r.TagValue("a")),
		Title:          title,
		Content:        content,
		CreatedAt:      r.CreatedAt,
	}
}

// StoreKey returns the namespaced record identity of the lesson.
func (l *Lesson) StoreKey() string {
	return "lesson:" + l.ID
}

// StoreTimestamp returns the declared timestamp of the source record.
func (l *Lesson) StoreTimestamp() int64 {
	return l.CreatedAt
}

// MergeFrom keeps the first observed version: lessons are immutable.
func (l *Lesson) MergeFrom(prev Entity) Entity {
	if old, ok := prev.(*Lesson); ok {
		return old
	}
	return l
}

// LessonDraft is the mutation intent for publishing a lesson.
type LessonDraft struct {
	AgentID        string
	ProjectAddress Address
	Title          string
	Content        string
}

// Record constructs the outgoing lesson record with JSON content and the
// title duplicated into a "title" tag for consumers that skip JSON.
func (d LessonDraft) Record(now time.Time) *record.Record {
	payload, err := json.Marshal(lessonPayload{Title: d.Title, Content: d.Content})
	if err != nil {
		// Marshalling two strings cannot fail; fall back to raw content.
		payload = []byte(d.Content)
	}

	tags := [][]string{{"a", d.ProjectAddress.String()}}
	if d.Title != "" {
		tags = append(tags, []string{"title", d.Title})
	}

	return &record.Record{
		ID:        record.NewID(),
		Creator:   d.AgentID,
		Kind:      record.KindLesson,
		CreatedAt: now.Unix(),
		Content:   string(payload),
		Tags:      tags,
	}
}

// LessonCommentDraft is the mutation intent for a threaded reply on a
// lesson.
type LessonCommentDraft struct {
	CreatorID      string
	LessonID       string
	ProjectAddress Address
	Content        string
}

// Record constructs the outgoing comment record, threaded to its lesson by
// an "e" reference.
func (d LessonCommentDraft) Record(now time.Time) *record.Record {
	return &record.Record{
		ID:        record.NewID(),
		Creator:   d.CreatorID,
		Kind:      record.KindLessonComment,
		CreatedAt: now.Unix(),
		Content:   d.Content,
		Tags: [][]string{
			{"e", d.LessonID},
			{"a", d.ProjectAddress.String()},
		},
	}
}
