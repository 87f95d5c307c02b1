package testutil

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SequentialIDs hands out predictable ObjectIDs: the counter occupies the
// low bytes, so the first id is 000000000000000000000001.
//
// Implements store.IDGenerator.
type SequentialIDs struct {
	mu sync.Mutex
	n  uint64
}

// NewID returns the next id in sequence.
func (g *SequentialIDs) NewID() primitive.ObjectID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	var oid primitive.ObjectID
	binary.BigEndian.PutUint64(oid[4:], g.n)
	return oid
}

// SequentialOps hands out operation ids "op-0001", "op-0002", ...
//
// Implements store.OpIDGenerator.
type SequentialOps struct {
	mu sync.Mutex
	n  int
}

// NewOpID returns the next operation id.
func (g *SequentialOps) NewOpID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("op-%04d", g.n)
}
