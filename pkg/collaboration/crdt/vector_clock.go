// Package crdt holds the conflict-free primitives backing the collaborative
// field store: vector clocks for causal ordering and last-write-wins
// registers for committed field values.
package crdt

// NodeID identifies a participating session or process
type NodeID string

// VectorClock tracks causal ordering across nodes
type VectorClock map[NodeID]uint64

// NewVectorClock creates an empty vector clock
func NewVectorClock() VectorClock {
	return make(VectorClock)
}

// Increment advances this node's component
func (vc VectorClock) Increment(node NodeID) {
	vc[node]++
}

// Update merges another clock into this one, taking the max per component
func (vc VectorClock) Update(other VectorClock) {
	for node, value := range other {
		if value > vc[node] {
			vc[node] = value
		}
	}
}

// Clone returns a deep copy
func (vc VectorClock) Clone() VectorClock {
	clone := make(VectorClock, len(vc))
	for node, value := range vc {
		clone[node] = value
	}
	return clone
}

// HappensBefore reports whether vc causally precedes other: every component
// of vc is <= the corresponding component of other, and at least one is
// strictly smaller.
func (vc VectorClock) HappensBefore(other VectorClock) bool {
	strictly := false
	for node, value := range vc {
		otherValue := other[node]
		if value > otherValue {
			return false
		}
		if value < otherValue {
			strictly = true
		}
	}
	for node, otherValue := range other {
		if _, seen := vc[node]; !seen && otherValue > 0 {
			strictly = true
		}
	}
	return strictly
}

// Concurrent reports whether neither clock causally precedes the other
func (vc VectorClock) Concurrent(other VectorClock) bool {
	return !vc.HappensBefore(other) && !other.HappensBefore(vc) && !vc.Equal(other)
}

// Equal reports whether both clocks have identical components
func (vc VectorClock) Equal(other VectorClock) bool {
	for node, value := range vc {
		if other[node] != value {
			return false
		}
	}
	for node, value := range other {
		if vc[node] != value {
			return false
		}
	}
	return true
}
