package core

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// NewSessionID returns a new random session identifier for a query handle.
func NewSessionID() string {
	return uuid.NewString()
}

var (
	seqOnce sync.Once
	seqNode *snowflake.Node
)

// seqNodeOrPanic lazily builds the process-wide snowflake node behind
// NewSequenceID's monotonic, k-sortable IDs, for records where plain
// randomness (uuid) would not preserve insertion order.
func seqNodeOrPanic() *snowflake.Node {
	seqOnce.Do(func() {
		n, err := snowflake.NewNode(1)
		if err != nil {
			// snowflake.NewNode only fails for an out-of-range node id,
			// which is a constant here and therefore a programming error.
			panic(err)
		}
		seqNode = n
	})
	return seqNode
}

// NewSequenceID returns a monotonically increasing, process-wide unique ID
// suitable for ordering step/intervention records created in the same
// process without a central counter.
func NewSequenceID() int64 {
	return seqNodeOrPanic().Generate().Int64()
}
