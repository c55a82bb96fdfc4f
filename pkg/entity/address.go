package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is the addressable identity of a mutable logical entity: the
// kind:creator:slug triple that stays stable across every record describing
// the same entity. Two records sharing an address are versions of one
// logical entity; the one with the larger declared timestamp wins.
type Address struct {
	Kind    int    `json:"kind"`
	Creator string `json:"creator"`
	Slug    string `json:"slug"`
}

// ParseAddress parses a kind:creator:slug reference as carried by "a" tags.
// References may carry an optional trailing relay-hint segment
// (kind:creator:slug:relayhint); anything after the third colon-delimited
// segment is discarded. Malformed input yields the zero Address, never an
// error.
func ParseAddress(s string) Address {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return Address{}
	}

	kind, err := strconv.Atoi(parts[0])
	if err != nil || kind <= 0 {
		return Address{}
	}

	if parts[1] == "" || parts[2] == "" {
		return Address{}
	}

	return Address{Kind: kind, Creator: parts[1], Slug: parts[2]}
}

// NewAddress constructs the addressable identity for a record of the given
// kind, signed by creator, with the given "d" tag slug.
func NewAddress(kind int, creator, slug string) Address {
	return Address{Kind: kind, Creator: creator, Slug: slug}
}

// String reconstructs the canonical kind:creator:slug form, with no relay
// hint. The zero Address renders as the empty string.
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d:%s:%s", a.Kind, a.Creator, a.Slug)
}

// IsZero reports whether the address is unset (parse failure or absent tag).
func (a Address) IsZero() bool {
	return a.Kind == 0 && a.Creator == "" && a.Slug == ""
}
