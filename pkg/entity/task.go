package entity

import (
	"time"

	"github.com/dyluth/weir/pkg/record"
)

// Task is a record-identity keyed entity whose status, assignees and branch
// may be refreshed by later records explicitly referencing the same task id.
// Title and content follow the monotone-non-destructive rule: they are only
// overwritten by non-empty values.
type Task struct {
	ID             string   `json:"id"`                       // Record identity
	ProjectAddress Address  `json:"project_address"`          // From the "a" tag
	Title          string   `json:"title"`                    // Defaults to UntitledPlaceholder
	Content        string   `json:"content"`                  // Record content
	Status         string   `json:"status,omitempty"`         // Value of the "status" tag
	Assignees      []string `json:"assignees"`                // Repeatable "p" tags, tag order
	Branch         string   `json:"branch,omitempty"`         // Value of the "branch" tag
	ConversationID string   `json:"conversation_id,omitempty"` // "e" tag linking a related conversation
	CreatedAt      int64    `json:"created_at"`
}

// TaskFromRecord derives a Task from a record. Total: missing tags resolve
// to defaults, never an error.
func TaskFromRecord(r *record.Record) *Task {
	title := r.TagValue("title")
	if title == "" {
		title = UntitledPlaceholder
	}

	return &Task{
		ID:             r.ID,
		ProjectAddress: ParseAddress(r.TagValue("a")),
		Title:          title,
		Content:        r.Content,
		Status:         r.TagValue("status"),
		Assignees:      r.TagValues("p"),
		Branch:         r.TagValue("branch"),
		ConversationID: r.TagValue("e"),
		CreatedAt:      r.CreatedAt,
	}
}

// StoreKey returns the namespaced record identity of the task.
func (t *Task) StoreKey() string {
	return "task:" + t.ID
}

// StoreTimestamp returns the declared timestamp of the source record.
func (t *Task) StoreTimestamp() int64 {
	return t.CreatedAt
}

// MergeFrom refreshes status, assignees and branch from the newer record
// and applies the non-destructive rule to title and content: an empty value
// in the refresh never erases what is already known.
func (t *Task) MergeFrom(prev Entity) Entity {
	old, ok := prev.(*Task)
	if !ok {
		return t
	}

	merged := *t
	if merged.Title == UntitledPlaceholder && old.Title != UntitledPlaceholder {
		merged.Title = old.Title
	}
	merged.Content = firstNonEmpty(t.Content, old.Content)
	merged.Status = firstNonEmpty(t.Status, old.Status)
	merged.Branch = firstNonEmpty(t.Branch, old.Branch)
	merged.Assignees = mergeList(t.Assignees, old.Assignees)
	merged.ConversationID = firstNonEmpty(t.ConversationID, old.ConversationID)
	return &merged
}

// TaskDraft is the local mutation intent for creating a task, or for
// refreshing an existing one. A refresh sets RefreshID to the task's record
// identity so the merge store routes the new record to the existing slot;
// a blank RefreshID creates a fresh task.
type TaskDraft struct {
	RefreshID      string
	CreatorID      string
	ProjectAddress Address
	Title          string
	Content        string
	Status         string
	Assignees      []string
	Branch         string
	ConversationID string
}

// Record constructs the outgoing task record.
func (d TaskDraft) Record(now time.Time) *record.Record {
	tags := [][]string{{"a", d.ProjectAddress.String()}}
	if d.Title != "" {
		tags = append(tags, []string{"title", d.Title})
	}
	if d.Status != "" {
		tags = append(tags, []string{"status", d.Status})
	}
	for _, assignee := range d.Assignees {
		tags = append(tags, []string{"p", assignee})
	}
	if d.Branch != "" {
		tags = append(tags, []string{"branch", d.Branch})
	}
	if d.ConversationID != "" {
		tags = append(tags, []string{"e", d.ConversationID})
	}

	id := d.RefreshID
	if id == "" {
		id = record.NewID()
	}

	return &record.Record{
		ID:        id,
		Creator:   d.CreatorID,
		Kind:      record.KindTask,
		CreatedAt: now.Unix(),
		Content:   d.Content,
		Tags:      tags,
	}
}
