package common

import "hash/fnv"

// Hash32 returns the 32-bit FNV-1a hash of data. It is used for compact
// identifiers, like fact names on the wire, where collisions are tolerable.
func Hash32(data []byte) uint32 {
	h := fnv.New32a()

	h.Write(data)

	return h.Sum32()
}

// Hash64 returns the 64-bit FNV-1a hash of data. Peer GUIDs are derived from
// public keys with this function.
func Hash64(data []byte) uint64 {
	h := fnv.New64a()

	h.Write(data)

	return h.Sum64()
}
