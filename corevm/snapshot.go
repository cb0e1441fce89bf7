package corevm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode is the queue's canonical CBOR encoder, mirroring the
// teacher's own canonical-mode setup for its distribution wire format
// (vm/dist/wire.go) so a snapshot has a deterministic byte-for-byte
// encoding independent of map iteration order.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("corevm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// QueueSnapshot is the JIT queue's diagnostic snapshot: the pending
// requests (by site name and class) and the coalescing/threshold
// configuration in effect when the snapshot was taken.
type QueueSnapshot struct {
	Enabled          bool                  `cbor:"enabled"`
	Sync             bool                  `cbor:"sync"`
	Threshold        uint64                `cbor:"threshold"`
	PendingCount     int                   `cbor:"pending_count"`
	CoalescedSeen    int                   `cbor:"coalesced_seen"`
	PendingRequests  []RequestSnapshot     `cbor:"pending_requests"`
}

// RequestSnapshot is one pending request's diagnostic projection: no
// live pointers, just names, so the snapshot survives serialization
// round trips and process boundaries.
type RequestSnapshot struct {
	SiteName      string `cbor:"site_name"`
	ReceiverClass string `cbor:"receiver_class"`
	IsBlock       bool   `cbor:"is_block"`
	HitCount      uint64 `cbor:"hit_count"`
}

// Snapshot captures q's current state for external inspection.
func (q *Queue) Snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	reqs := make([]RequestSnapshot, 0, len(q.pending))
	for _, r := range q.pending {
		name, class := "", ""
		if r.Site != nil {
			name = r.Site.Name()
		}
		if r.ReceiverClass != nil {
			class = r.ReceiverClass.Name
		}
		reqs = append(reqs, RequestSnapshot{SiteName: name, ReceiverClass: class, IsBlock: r.IsBlock, HitCount: r.HitCount})
	}

	return QueueSnapshot{
		Enabled:         q.enabled,
		Sync:            q.sync,
		Threshold:       q.threshold,
		PendingCount:    len(q.pending),
		CoalescedSeen:   len(q.seen),
		PendingRequests: reqs,
	}
}

// MarshalSnapshot encodes snap as canonical CBOR.
func MarshalSnapshot(snap QueueSnapshot) ([]byte, error) {
	return cborEncMode.Marshal(snap)
}

// UnmarshalSnapshot decodes canonical CBOR bytes into a QueueSnapshot.
func UnmarshalSnapshot(data []byte) (QueueSnapshot, error) {
	var snap QueueSnapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return QueueSnapshot{}, fmt.Errorf("corevm: unmarshal queue snapshot: %w", err)
	}
	return snap, nil
}
