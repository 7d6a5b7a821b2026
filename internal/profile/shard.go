package profile

import (
	"sort"

	"github.com/spaolacci/murmur3"
)

// shardOf assigns a customer to a shard by murmur3 hash of the person id, so
// a given customer always lands on the same shard for a fixed shard count.
func shardOf(personID string, shards int) int {
	return int(murmur3.Sum32([]byte(personID)) % uint32(shards))
}

// partitionShards returns, per shard, the indices of the groups it owns.
// Empty shards are omitted; indices inside a shard keep group order.
func partitionShards(groups []customerGroup, shards int) [][]int {
	byShard := make(map[int][]int)
	for i, g := range groups {
		s := shardOf(g.personID, shards)
		byShard[s] = append(byShard[s], i)
	}

	keys := make([]int, 0, len(byShard))
	for s := range byShard {
		keys = append(keys, s)
	}
	sort.Ints(keys)

	out := make([][]int, 0, len(keys))
	for _, s := range keys {
		out = append(out, byShard[s])
	}
	return out
}
