// Package record defines the immutable relay event ("record") that is the
// atomic unit of input to the Weir synchronization core, together with the
// tag-lookup helpers and filter type shared by parsers, builders and the
// transport layer.
//
// Records arrive asynchronously, out of order and possibly duplicated from
// several autonomous relays. The core never mutates a record; everything
// derived from one is built by the entity parsers in pkg/entity.
package record

import (
	"fmt"

	"github.com/google/uuid"
)

// Well-known record kinds. The kind is a small integer tag carried by every
// record that determines which entity parser applies.
const (
	KindConversation  = 11    // conversation root message
	KindLessonComment = 1111  // threaded reply on a lesson
	KindTask          = 1934  // task definition or task refresh
	KindLesson        = 4129  // agent lesson (JSON content)
	KindAgentProfile  = 4199  // agent definition
	KindTypingStart   = 24111 // ephemeral typing indicator
	KindTypingStop    = 24112 // explicit typing stop signal
	KindProjectStatus = 24010 // ephemeral project presence snapshot
	KindTaskAbort     = 24133 // fire-and-forget task abort instruction
	KindProject       = 31933 // addressable project definition
)

// Record represents an immutable signed event from the relay network.
// Every field is externally produced; the core treats records as read-only.
type Record struct {
	ID        string     `json:"id"`         // Unique record identifier
	Creator   string     `json:"creator"`    // Public key of the signing identity
	Kind      int        `json:"kind"`       // Record kind (see Kind* constants)
	CreatedAt int64      `json:"created_at"` // Declared creation time, unix seconds
	Content   string     `json:"content"`    // Free-form content (JSON for some kinds)
	Tags      [][]string `json:"tags"`       // Ordered tag groups, looked up by first element
}

// TagValue returns the value of the first tag group whose key (first
// element) matches the given key. A tag group [key, v1, v2, ...] yields v1.
// Returns "" when no such group exists or the group has no value element.
// Absent or malformed tags never produce an error.
func (r *Record) TagValue(key string) string {
	for _, group := range r.Tags {
		if len(group) >= 2 && group[0] == key {
			return group[1]
		}
	}
	return ""
}

// TagValues collects the value element of every tag group matching the given
// key, preserving tag order. Groups with fewer than 2 elements are skipped.
// Returns an empty slice (never nil) when no groups match.
func (r *Record) TagValues(key string) []string {
	values := []string{}
	for _, group := range r.Tags {
		if len(group) >= 2 && group[0] == key {
			values = append(values, group[1])
		}
	}
	return values
}

// TagGroup returns the first full tag group matching the given key, or nil
// when no group matches. Useful for tags carrying more than one value
// element, such as the [key, pubkey, slug] agent entries of a status record.
func (r *Record) TagGroup(key string) []string {
	for _, group := range r.Tags {
		if len(group) >= 1 && group[0] == key {
			return group
		}
	}
	return nil
}

// TagGroups returns every full tag group matching the given key, preserving
// tag order. Returns an empty slice (never nil) when no groups match.
func (r *Record) TagGroups(key string) [][]string {
	groups := [][]string{}
	for _, group := range r.Tags {
		if len(group) >= 1 && group[0] == key {
			groups = append(groups, group)
		}
	}
	return groups
}

// Validate checks the fields a record must carry before it can be published.
// Inbound records are never validated - malformed inbound data resolves to
// defaults during parsing instead of failing.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record ID cannot be empty")
	}
	if r.Creator == "" {
		return fmt.Errorf("record creator cannot be empty")
	}
	if r.Kind <= 0 {
		return fmt.Errorf("invalid record kind: %d", r.Kind)
	}
	if r.CreatedAt <= 0 {
		return fmt.Errorf("invalid record timestamp: %d", r.CreatedAt)
	}
	return nil
}

// NewID generates a fresh record identifier for locally built records.
func NewID() string {
	return uuid.New().String()
}
