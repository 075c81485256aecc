package chainsync

import (
	"github.com/ergolabs/ergo-streaming/ergo"
)

// Block is a header plus its ordered transactions, as retained by the cache
// and carried in upgrades.
type Block struct {
	ID           ergo.BlockId            `json:"id"`
	ParentID     ergo.BlockId            `json:"parentId"`
	Height       uint32                  `json:"height"`
	Timestamp    uint64                  `json:"timestamp"`
	Transactions []ergo.BlockTransaction `json:"transactions"`
}

func BlockFromFullBlock(fb ergo.FullBlock) Block {
	return Block{
		ID:           fb.Header.ID,
		ParentID:     fb.Header.ParentID,
		Height:       fb.Header.Height,
		Timestamp:    fb.Header.Timestamp,
		Transactions: fb.Transactions,
	}
}

// BlockRecord is the cache's compact index entry for a block.
type BlockRecord struct {
	ID     ergo.BlockId `json:"id"`
	Height uint32       `json:"height"`
}

// ChainUpgrade is a single unit of chain progress: apply one block or
// unapply one block.
type ChainUpgrade interface {
	chainUpgrade()
}

// RollForward applies a block on top of the local chain view.
type RollForward struct {
	Block Block
}

// RollBackward unapplies the current best block of the local chain view.
type RollBackward struct {
	Block Block
}

func (RollForward) chainUpgrade()  {}
func (RollBackward) chainUpgrade() {}
