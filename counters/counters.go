// Package counters implements the read-only, reset-on-read counter
// table of spec.md §6. Fields mirror AshCount from the original
// ash-host.h one-to-one. Counters are written only by the link engine
// and read only (advisorily, per spec.md §5) by the upper layer or a
// metrics exporter, so updates go through sync/atomic rather than a
// mutex — the same primitive amken3d-gopper/protocol/transport.go uses
// for its synchronization/sequence fields.
package counters

import "sync/atomic"

// Counters holds every field named in spec.md §6.
type Counters struct {
	TxBytes        uint64
	TxBlocks       uint64
	TxData         uint64
	TxAllFrames    uint64
	TxDataFrames   uint64
	TxAckFrames    uint64
	TxNakFrames    uint64
	TxReDataFrames uint64
	TxN0Frames     uint64
	TxN1Frames     uint64
	TxCancelled    uint64

	RxBytes        uint64
	RxBlocks       uint64
	RxData         uint64
	RxAllFrames    uint64
	RxDataFrames   uint64
	RxAckFrames    uint64
	RxNakFrames    uint64
	RxReDataFrames uint64
	RxN0Frames     uint64
	RxN1Frames     uint64
	RxCancelled    uint64

	RxCrcErrors     uint64
	RxCommErrors    uint64
	RxTooShort      uint64
	RxTooLong       uint64
	RxBadControl    uint64
	RxBadLength     uint64
	RxBadAckNumber  uint64
	RxNoBuffer      uint64
	RxDuplicates    uint64
	RxOutOfSequence uint64
	RxAckTimeouts   uint64
}

// field count, kept in sync with the struct above; used by Snapshot/
// Reset/Add to iterate without reflection.
const numFields = 33

func (c *Counters) fields() [numFields]*uint64 {
	return [numFields]*uint64{
		&c.TxBytes, &c.TxBlocks, &c.TxData, &c.TxAllFrames, &c.TxDataFrames,
		&c.TxAckFrames, &c.TxNakFrames, &c.TxReDataFrames, &c.TxN0Frames,
		&c.TxN1Frames, &c.TxCancelled,
		&c.RxBytes, &c.RxBlocks, &c.RxData, &c.RxAllFrames, &c.RxDataFrames,
		&c.RxAckFrames, &c.RxNakFrames, &c.RxReDataFrames, &c.RxN0Frames,
		&c.RxN1Frames, &c.RxCancelled,
		&c.RxCrcErrors, &c.RxCommErrors, &c.RxTooShort, &c.RxTooLong,
		&c.RxBadControl, &c.RxBadLength, &c.RxBadAckNumber, &c.RxNoBuffer,
		&c.RxDuplicates, &c.RxOutOfSequence, &c.RxAckTimeouts,
	}
}

// Store is the engine-owned, concurrency-safe counter bank. The engine
// itself is single-threaded (spec.md §5), but Store allows a UI or
// metrics exporter to read and reset-on-read concurrently with the
// engine's writes.
type Store struct {
	c Counters
}

// Add atomically increments a named counter field by delta.
func (s *Store) Add(field *uint64, delta uint64) {
	atomic.AddUint64(field, delta)
}

// Bump atomically increments a named counter field by 1.
func (s *Store) Bump(field *uint64) {
	atomic.AddUint64(field, 1)
}

// Raw returns a pointer to the live counter struct, so callers can pass
// field addresses to Add/Bump, e.g. s.Bump(&s.Raw().RxCrcErrors).
func (s *Store) Raw() *Counters {
	return &s.c
}

// Snapshot returns a copy of the current counter values without
// resetting them.
func (s *Store) Snapshot() Counters {
	var out Counters
	src := s.c.fields()
	dst := out.fields()
	for i := range src {
		*dst[i] = atomic.LoadUint64(src[i])
	}
	return out
}

// Reset reads and zeroes every counter atomically (per-field; the
// overall read is not a single atomic transaction, matching the
// "advisory" read guarantee of spec.md §5), returning the pre-reset
// values.
func (s *Store) Reset() Counters {
	var out Counters
	src := s.c.fields()
	dst := out.fields()
	for i := range src {
		*dst[i] = atomic.SwapUint64(src[i], 0)
	}
	return out
}
