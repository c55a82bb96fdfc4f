package entity

import (
	"time"

	"github.com/dyluth/weir/pkg/record"
)

// TypingValidity is the window after which a typing signal must be treated
// as expired regardless of whether an explicit stop record ever arrives.
const TypingValidity = 60 * time.Second

// AgentAvailability is one entry of a project status snapshot: an agent
// currently available to work on the project.
type AgentAvailability struct {
	AgentID string `json:"agent_id"` // Pubkey, second element of the "agent" tag group
	Slug    string `json:"slug"`     // Third element of the group
	Name    string `json:"name"`     // Fourth element when present, falls back to slug
}

// ProjectStatus is an ephemeral presence snapshot for one project. Unlike
// every other entity it is replaced wholesale: each new record for the same
// project replaces the agent list entirely, because presence is a snapshot,
// not a diff.
type ProjectStatus struct {
	ProjectAddress  Address             `json:"project_address"`
	ObservedAt      int64               `json:"observed_at"` // Declared timestamp of source record
	AvailableAgents []AgentAvailability `json:"available_agents"`
}

// ProjectStatusFromRecord derives a status snapshot from a record. Agent
// tag groups with fewer than 2 value elements contribute nothing; a missing
// name element falls back to the slug.
func ProjectStatusFromRecord(r *record.Record) *ProjectStatus {
	agents := []AgentAvailability{}
	for _, group := range r.TagGroups("agent") {
		if len(group) < 3 {
			continue
		}
		name := group[2]
		if len(group) >= 4 && group[3] != "" {
			name = group[3]
		}
		agents = append(agents, AgentAvailability{
			AgentID: group[1],
			Slug:    group[2],
			Name:    name,
		})
	}

	return &ProjectStatus{
		ProjectAddress:  ParseAddress(r.TagValue("a")),
		ObservedAt:      r.CreatedAt,
		AvailableAgents: agents,
	}
}

// StoreKey returns the namespaced project identity the snapshot belongs to.
func (s *ProjectStatus) StoreKey() string {
	return "status:" + s.ProjectAddress.String()
}

// StoreTimestamp returns the declared timestamp of the source record.
func (s *ProjectStatus) StoreTimestamp() int64 {
	return s.ObservedAt
}

// MergeFrom implements wholesale replacement: the newer snapshot wins in
// full, no field-level merge.
func (s *ProjectStatus) MergeFrom(prev Entity) Entity {
	return s
}

// StatusSnapshot is the mutation intent for publishing a project presence
// snapshot listing the agents currently available.
type StatusSnapshot struct {
	CreatorID      string
	ProjectAddress Address
	Agents         []AgentAvailability
}

// Record constructs the outgoing status record. Each agent becomes an
// ["agent", pubkey, slug, name] tag group.
func (d StatusSnapshot) Record(now time.Time) *record.Record {
	tags := [][]string{{"a", d.ProjectAddress.String()}}
	for _, agent := range d.Agents {
		tags = append(tags, []string{"agent", agent.AgentID, agent.Slug, agent.Name})
	}

	return &record.Record{
		ID:        record.NewID(),
		Creator:   d.CreatorID,
		Kind:      record.KindProjectStatus,
		CreatedAt: now.Unix(),
		Tags:      tags,
	}
}

// TypingSignal is an ephemeral indicator that someone (or some agent) is
// composing a reply in a conversation. Validity is a pure function of wall
// clock time against ObservedAt, re-evaluated on every read - the core
// never caches or proactively expires it.
type TypingSignal struct {
	ConversationID string  `json:"conversation_id"` // From the "e" tag
	ProjectAddress Address `json:"project_address"` // From the "a" tag
	Message        string  `json:"message"`         // Record content, e.g. "thinking about tests"
	Phase          string  `json:"phase,omitempty"` // Value of the "phase" tag
	ObservedAt     int64   `json:"observed_at"`     // Declared timestamp of source record
	Stopped        bool    `json:"stopped"`         // True when derived from an explicit stop record
}

// TypingSignalFromRecord derives a typing signal from a start or stop
// record.
func TypingSignalFromRecord(r *record.Record) *TypingSignal {
	return &TypingSignal{
		ConversationID: r.TagValue("e"),
		ProjectAddress: ParseAddress(r.TagValue("a")),
		Message:        r.Content,
		Phase:          r.TagValue("phase"),
		ObservedAt:     r.CreatedAt,
		Stopped:        r.Kind == record.KindTypingStop,
	}
}

// IsValidAt reports whether the signal is still within its validity window
// at the given instant. An explicitly stopped signal is never valid.
func (t *TypingSignal) IsValidAt(now time.Time) bool {
	if t.Stopped {
		return false
	}
	return now.Unix()-t.ObservedAt < int64(TypingValidity/time.Second)
}

// IsValid reports validity against the current wall clock.
func (t *TypingSignal) IsValid() bool {
	return t.IsValidAt(time.Now())
}

// StoreKey returns the namespaced conversation identity the signal belongs
// to - one live signal per conversation, latest wins.
func (t *TypingSignal) StoreKey() string {
	return "typing:" + t.ConversationID
}

// StoreTimestamp returns the declared timestamp of the source record.
func (t *TypingSignal) StoreTimestamp() int64 {
	return t.ObservedAt
}

// MergeFrom implements wholesale replacement: typing state is a snapshot.
func (t *TypingSignal) MergeFrom(prev Entity) Entity {
	return t
}

// TypingUpdate is the mutation intent for publishing a typing start or stop
// signal for a conversation.
type TypingUpdate struct {
	CreatorID      string
	ConversationID string
	ProjectAddress Address
	Message        string
	Phase          string
	Stop           bool
}

// Record constructs the outgoing typing record.
func (d TypingUpdate) Record(now time.Time) *record.Record {
	kind := record.KindTypingStart
	if d.Stop {
		kind = record.KindTypingStop
	}

	tags := [][]string{
		{"e", d.ConversationID},
		{"a", d.ProjectAddress.String()},
	}
	if d.Phase != "" {
		tags = append(tags, []string{"phase", d.Phase})
	}

	return &record.Record{
		ID:        record.NewID(),
		Creator:   d.CreatorID,
		Kind:      kind,
		CreatedAt: now.Unix(),
		Content:   d.Message,
		Tags:      tags,
	}
}

// TaskAbortSignal is a fire-and-forget instruction to stop work on a task.
// It is consumed once by whoever is driving that task and never persisted
// as entity state.
type TaskAbortSignal struct {
	TaskID     string `json:"task_id"`     // From the "e" tag
	RecordID   string `json:"record_id"`   // For duplicate suppression
	ObservedAt int64  `json:"observed_at"` // Declared timestamp of source record
}

// TaskAbortSignalFromRecord derives an abort signal from a record.
func TaskAbortSignalFromRecord(r *record.Record) *TaskAbortSignal {
	return &TaskAbortSignal{
		TaskID:     r.TagValue("e"),
		RecordID:   r.ID,
		ObservedAt: r.CreatedAt,
	}
}

// TaskAbort is the mutation intent for aborting a task.
type TaskAbort struct {
	CreatorID string
	TaskID    string
}

// Record constructs the outgoing abort record.
func (d TaskAbort) Record(now time.Time) *record.Record {
	return &record.Record{
		ID:        record.NewID(),
		Creator:   d.CreatorID,
		Kind:      record.KindTaskAbort,
		CreatedAt: now.Unix(),
		Tags:      [][]string{{"e", d.TaskID}},
	}
}
