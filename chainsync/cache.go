package chainsync

import (
	"github.com/ergolabs/ergo-streaming/ergo"
)

// ChainCache is a bounded persistent log of recently-seen blocks. A block
// enters when the follower confirms linkage and leaves either by eviction
// (oldest first, once the retained depth exceeds the configured maximum) or
// by rollback (best first).
type ChainCache interface {
	// AppendBlock inserts b as the new best block. Idempotent: appending an
	// id already present is a no-op.
	AppendBlock(b Block) error
	// Exists reports whether a block with the given id is present.
	Exists(id ergo.BlockId) (bool, error)
	// GetBestBlock returns the highest block, if any.
	GetBestBlock() (Block, bool, error)
	// TakeBestBlock pops and returns the highest block, if any.
	TakeBestBlock() (Block, bool, error)
	// HasTransaction reports whether any retained block contains the
	// transaction id. Used to tell confirmed mempool transactions apart
	// from withdrawn ones.
	HasTransaction(id ergo.TxId) (bool, error)
}
