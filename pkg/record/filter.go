package record

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Filter describes a semantic interest in a subset of the record stream.
// All criteria are ANDed together - a record must match every populated
// criterion to pass. Empty criteria match everything.
type Filter struct {
	Authors []string            `json:"authors,omitempty"` // Creator pubkeys, empty = any
	Kinds   []int               `json:"kinds,omitempty"`   // Record kinds, empty = any
	Tags    map[string][]string `json:"tags,omitempty"`    // tag key -> accepted values, value match on any
}

// Matches returns true if the record satisfies every populated criterion.
func (f *Filter) Matches(r *Record) bool {
	if len(f.Authors) > 0 && !containsString(f.Authors, r.Creator) {
		return false
	}

	if len(f.Kinds) > 0 && !containsInt(f.Kinds, r.Kind) {
		return false
	}

	for key, accepted := range f.Tags {
		if len(accepted) == 0 {
			continue
		}
		matched := false
		for _, value := range r.TagValues(key) {
			if containsString(accepted, value) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// Signature returns a canonical string identifying the semantic interest of
// this filter. Two filters describing the same interest produce the same
// signature regardless of slice or map ordering. The subscription
// orchestrator keys its registry on this value to avoid opening duplicate
// subscriptions for the same logical interest.
func (f *Filter) Signature() string {
	var b strings.Builder

	authors := append([]string(nil), f.Authors...)
	sort.Strings(authors)
	b.WriteString("authors=")
	b.WriteString(strings.Join(authors, ","))

	kinds := append([]int(nil), f.Kinds...)
	sort.Ints(kinds)
	b.WriteString(";kinds=")
	for i, k := range kinds {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(k))
	}

	keys := make([]string, 0, len(f.Tags))
	for key := range f.Tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		values := append([]string(nil), f.Tags[key]...)
		sort.Strings(values)
		b.WriteString(fmt.Sprintf(";tag:%s=%s", key, strings.Join(values, ",")))
	}

	return b.String()
}

// HasCriteria returns true if any criterion is populated. A filter with no
// criteria matches every record on the stream.
func (f *Filter) HasCriteria() bool {
	return len(f.Authors) > 0 || len(f.Kinds) > 0 || len(f.Tags) > 0
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
