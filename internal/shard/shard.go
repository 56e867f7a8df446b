package shard

import (
	"hash/fnv"
)

// ID represents a shard number in [0, NumShards).
type ID int

// ForKey computes the shard for an encoded partition key. Documents sharing
// a partition key always land on the same shard.
func ForKey(key string, numShards int) ID {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return ID(h.Sum32() % uint32(numShards))
}
