package cache

import (
	"sync"

	"github.com/ergolabs/ergo-streaming/chainsync"
	"github.com/ergolabs/ergo-streaming/ergo"
)

// InMemory is a ChainCache backed by a map plus a height-ordered list of
// records. State is lost on restart; it exists for tests and for callers
// that do not need persistence.
type InMemory struct {
	mu       sync.Mutex
	maxDepth int
	blocks   map[ergo.BlockId]chainsync.Block
	order    []chainsync.BlockRecord
	txIndex  map[ergo.TxId]ergo.BlockId
}

func NewInMemory(maxRollbackDepth int) *InMemory {
	return &InMemory{
		maxDepth: maxRollbackDepth,
		blocks:   make(map[ergo.BlockId]chainsync.Block),
		txIndex:  make(map[ergo.TxId]ergo.BlockId),
	}
}

var _ chainsync.ChainCache = (*InMemory)(nil)

func (c *InMemory) AppendBlock(b chainsync.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.blocks[b.ID]; ok {
		return nil
	}
	c.blocks[b.ID] = b
	c.order = append(c.order, chainsync.BlockRecord{ID: b.ID, Height: b.Height})
	for _, tx := range b.Transactions {
		c.txIndex[tx.ID] = b.ID
	}
	if c.maxDepth > 0 && len(c.order) > c.maxDepth {
		oldest := c.order[0]
		c.order = c.order[1:]
		c.drop(oldest.ID)
	}
	return nil
}

func (c *InMemory) Exists(id ergo.BlockId) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.blocks[id]
	return ok, nil
}

func (c *InMemory) GetBestBlock() (chainsync.Block, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return chainsync.Block{}, false, nil
	}
	best := c.order[len(c.order)-1]
	return c.blocks[best.ID], true, nil
}

func (c *InMemory) TakeBestBlock() (chainsync.Block, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return chainsync.Block{}, false, nil
	}
	best := c.order[len(c.order)-1]
	c.order = c.order[:len(c.order)-1]
	blk := c.blocks[best.ID]
	c.drop(best.ID)
	return blk, true, nil
}

func (c *InMemory) HasTransaction(id ergo.TxId) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.txIndex[id]
	return ok, nil
}

// drop removes a block and the tx index entries still pointing at it.
// Callers hold the lock.
func (c *InMemory) drop(id ergo.BlockId) {
	blk, ok := c.blocks[id]
	if !ok {
		return
	}
	delete(c.blocks, id)
	for _, tx := range blk.Transactions {
		if owner, ok := c.txIndex[tx.ID]; ok && owner == id {
			delete(c.txIndex, tx.ID)
		}
	}
}
