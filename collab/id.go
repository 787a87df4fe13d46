package collab

import (
	"strconv"
	"strings"
)

// ID is a Collab's path: the sequence of edge labels from the document
// root to the node. The root itself has the empty path. IDs are stable
// across replicas that share the same schema and are safe to serialize.
type ID []string

// String renders the ID as a single slash-separated string, for logging and
// for use as e.g. a Redis channel name or map key.
func (id ID) String() string {
	return strings.Join(id, "/")
}

// Equal reports whether id and other name the same node.
func (id ID) Equal(other ID) bool {
	if len(id) != len(other) {
		return false
	}
	for i := range id {
		if id[i] != other[i] {
			return false
		}
	}
	return true
}

// Child returns a new ID naming the child name below id. id is never
// mutated; the returned slice is independent.
func (id ID) Child(name string) ID {
	out := make(ID, len(id)+1)
	copy(out, id)
	out[len(id)] = name
	return out
}

// DynamicChildName derives the deterministic name the runtime assigns a
// child created by a dynamic collection in response to a message:
// replicas that process the same creating op name the child identically
// without further coordination.
func DynamicChildName(senderID string, senderCounter uint32, localIndex int) string {
	return senderID + ":" + strconv.FormatUint(uint64(senderCounter), 10) + ":" + strconv.Itoa(localIndex)
}
