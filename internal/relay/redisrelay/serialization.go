package redisrelay

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dyluth/weir/pkg/record"
)

// Redis stores data as string-to-string hashes. The tags array is
// JSON-encoded into a single hash field; scalar fields stay individually
// addressable.

// recordToHash converts a record to Redis hash form.
func recordToHash(r *record.Record) (map[string]interface{}, error) {
	tagsJSON, err := json.Marshal(r.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	return map[string]interface{}{
		"id":         r.ID,
		"creator":    r.Creator,
		"kind":       r.Kind,
		"created_at": r.CreatedAt,
		"content":    r.Content,
		"tags":       string(tagsJSON),
	}, nil
}

// hashToRecord converts a Redis hash back to a record.
func hashToRecord(hash map[string]string) (*record.Record, error) {
	kind, err := strconv.Atoi(hash["kind"])
	if err != nil {
		return nil, fmt.Errorf("invalid kind field: %w", err)
	}

	createdAt, err := strconv.ParseInt(hash["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at field: %w", err)
	}

	var tags [][]string
	if tagsJSON := hash["tags"]; tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if tags == nil {
		tags = [][]string{}
	}

	return &record.Record{
		ID:        hash["id"],
		Creator:   hash["creator"],
		Kind:      kind,
		CreatedAt: createdAt,
		Content:   hash["content"],
		Tags:      tags,
	}, nil
}
