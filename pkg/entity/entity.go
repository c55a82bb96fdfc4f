// Package entity defines the live application entities derived from relay
// records (projects, conversations, tasks, agent profiles, presence
// signals), the total parsers that extract them from records, and the
// builders that construct outgoing records from local mutation intents.
//
// Parsers are total functions: a malformed or partial record never produces
// an error, every missing field resolves to a documented default. Builders
// reproduce the exact tag vocabulary the parsers consume, so for every
// entity kind parse(build(intent)) reconstructs the entity described by the
// intent.
package entity

// Entity is implemented by every derived entity that participates in the
// merge store. StoreKey namespaces the entity's identity so different
// entity types never collide in the same table. StoreTimestamp is the
// declared creation time of the record the entity was derived from; the
// store's recency rule compares these values, never arrival order.
type Entity interface {
	// StoreKey returns the stable identity of this entity in the merge store.
	StoreKey() string

	// StoreTimestamp returns the declared creation time (unix seconds) of
	// the record this version was derived from.
	StoreTimestamp() int64

	// MergeFrom produces the merged version resulting from applying this
	// (newer) entity on top of prev. It must not mutate either receiver or
	// argument. The store only calls MergeFrom after the recency rule has
	// established that this entity is strictly newer than prev.
	MergeFrom(prev Entity) Entity
}

// UntitledPlaceholder is the title assigned to projects and tasks whose
// source record carries no usable title tag.
const UntitledPlaceholder = "Untitled"

// firstNonEmpty returns a if it is non-empty, otherwise b. This is the
// non-destructive field update rule: an absent field never erases a
// previously known value.
func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// mergeList returns next if it carries any elements, otherwise prev.
// List fields follow the same non-destructive rule as scalars.
func mergeList(next, prev []string) []string {
	if len(next) > 0 {
		return next
	}
	return prev
}
