// Package redisrelay implements the relay.Transport contract on Redis:
// records are stored as hashes, indexed by declared timestamp, and fanned
// out live over Pub/Sub. All keys and channels are namespaced by instance
// name so multiple Weir instances can coexist on one Redis server.
package redisrelay

import "fmt"

// Key pattern: weir:{instance}:record:{record_id}
// Index pattern: weir:{instance}:records_by_time (ZSET, score = created_at)
// Channel pattern: weir:{instance}:records

// RecordKey returns the Redis key holding one record's hash.
func RecordKey(instanceName, recordID string) string {
	return fmt.Sprintf("weir:%s:record:%s", instanceName, recordID)
}

// RecordIndexKey returns the Redis key of the ZSET indexing all records by
// declared timestamp. Used by CollectOnce and subscription backfill.
func RecordIndexKey(instanceName string) string {
	return fmt.Sprintf("weir:%s:records_by_time", instanceName)
}

// RecordsChannel returns the Pub/Sub channel carrying live record fan-out.
func RecordsChannel(instanceName string) string {
	return fmt.Sprintf("weir:%s:records", instanceName)
}
