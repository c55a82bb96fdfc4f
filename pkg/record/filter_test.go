package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleRecord() *Record {
	return &Record{
		ID:        "r1",
		Creator:   "pk1",
		Kind:      KindTask,
		CreatedAt: 100,
		Tags: [][]string{
			{"a", "31933:pk1:proj1"},
			{"status", "open"},
		},
	}
}

func TestFilterMatches(t *testing.T) {
	t.Run("empty filter matches everything", func(t *testing.T) {
		f := Filter{}
		assert.True(t, f.Matches(sampleRecord()))
		assert.False(t, f.HasCriteria())
	})

	t.Run("author criterion", func(t *testing.T) {
		assert.True(t, (&Filter{Authors: []string{"pk1", "pk2"}}).Matches(sampleRecord()))
		assert.False(t, (&Filter{Authors: []string{"pk9"}}).Matches(sampleRecord()))
	})

	t.Run("kind criterion", func(t *testing.T) {
		assert.True(t, (&Filter{Kinds: []int{KindTask}}).Matches(sampleRecord()))
		assert.False(t, (&Filter{Kinds: []int{KindProject}}).Matches(sampleRecord()))
	})

	t.Run("tag criterion matches any accepted value", func(t *testing.T) {
		f := Filter{Tags: map[string][]string{"a": {"31933:pk1:proj1", "31933:pk1:other"}}}
		assert.True(t, f.Matches(sampleRecord()))

		f = Filter{Tags: map[string][]string{"a": {"31933:pk9:nope"}}}
		assert.False(t, f.Matches(sampleRecord()))
	})

	t.Run("criteria are ANDed", func(t *testing.T) {
		f := Filter{
			Authors: []string{"pk1"},
			Kinds:   []int{KindProject}, // wrong kind
		}
		assert.False(t, f.Matches(sampleRecord()))
	})
}

func TestFilterSignature(t *testing.T) {
	t.Run("order independent", func(t *testing.T) {
		a := Filter{
			Authors: []string{"pk2", "pk1"},
			Kinds:   []int{KindTask, KindProject},
			Tags:    map[string][]string{"a": {"y", "x"}},
		}
		b := Filter{
			Authors: []string{"pk1", "pk2"},
			Kinds:   []int{KindProject, KindTask},
			Tags:    map[string][]string{"a": {"x", "y"}},
		}
		assert.Equal(t, a.Signature(), b.Signature())
	})

	t.Run("different interests produce different signatures", func(t *testing.T) {
		a := Filter{Kinds: []int{KindTask}}
		b := Filter{Kinds: []int{KindProject}}
		assert.NotEqual(t, a.Signature(), b.Signature())
	})
}
