package corevm

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// NewClassIdentity mints a process-unique class identity token,
// following the host runtime's own use of google/uuid for
// object/session identity (lib/runtime/objectspace.go). The UUID is
// folded down to the 32 bits a ReceiverDescriptor's class-id half can
// hold; collisions are astronomically unlikely for the number of
// classes one process defines. Two classes whose folded ids collide
// and whose method-table generations are also equal get equal
// receiver descriptors, so an inline cache filled for one of them
// also hits for the other.
func NewClassIdentity() uint32 {
	id := uuid.New()
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return h.Sum32()
}
