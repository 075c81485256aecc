package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/ergolabs/ergo-streaming/chainsync"
	"github.com/ergolabs/ergo-streaming/ergo"
)

// Key layout, all under one namespace:
//
//	b:<block id>  -> serialised Block
//	p:<block id>  -> parent block id (back-pointer for cheap pops)
//	t:<tx id>     -> containing block id
//	best          -> serialised BlockRecord of the head
var (
	blockPrefix  = []byte("b:")
	parentPrefix = []byte("p:")
	txPrefix     = []byte("t:")
	bestKey      = []byte("best")
)

// LevelDB is the persistent ChainCache. Appends and pops run inside write
// transactions so the block record, the best pointer and the parent link
// always move together.
type LevelDB struct {
	db       *leveldb.DB
	maxDepth int
}

func OpenLevelDB(path string, maxRollbackDepth int) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening chain cache at %s: %w", path, err)
	}
	return &LevelDB{db: db, maxDepth: maxRollbackDepth}, nil
}

func (c *LevelDB) Close() error {
	return c.db.Close()
}

var _ chainsync.ChainCache = (*LevelDB)(nil)

func prefixed(prefix []byte, suffix []byte) []byte {
	key := make([]byte, 0, len(prefix)+len(suffix))
	key = append(key, prefix...)
	return append(key, suffix...)
}

func blockKey(id ergo.BlockId) []byte  { return prefixed(blockPrefix, id.Bytes()) }
func parentKey(id ergo.BlockId) []byte { return prefixed(parentPrefix, id.Bytes()) }
func txKey(id ergo.TxId) []byte        { return prefixed(txPrefix, []byte(id)) }

func (c *LevelDB) AppendBlock(b chainsync.Block) error {
	tx, err := c.db.OpenTransaction()
	if err != nil {
		return err
	}
	has, err := tx.Has(blockKey(b.ID), nil)
	if err != nil {
		tx.Discard()
		return err
	}
	if has {
		tx.Discard()
		return nil
	}

	raw, err := json.Marshal(b)
	if err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Put(blockKey(b.ID), raw, nil); err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Put(parentKey(b.ID), b.ParentID.Bytes(), nil); err != nil {
		tx.Discard()
		return err
	}
	for _, blkTx := range b.Transactions {
		if err := tx.Put(txKey(blkTx.ID), b.ID.Bytes(), nil); err != nil {
			tx.Discard()
			return err
		}
	}
	record, err := json.Marshal(chainsync.BlockRecord{ID: b.ID, Height: b.Height})
	if err != nil {
		tx.Discard()
		return err
	}
	if err := tx.Put(bestKey, record, nil); err != nil {
		tx.Discard()
		return err
	}
	if err := c.evictBeyondDepth(tx, b.ID); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

// evictBeyondDepth walks maxDepth parent links back from the new head and
// deletes whatever block it lands on, keeping the retained history bounded.
func (c *LevelDB) evictBeyondDepth(tx *leveldb.Transaction, head ergo.BlockId) error {
	if c.maxDepth <= 0 {
		return nil
	}
	cursor := head
	for i := 0; i < c.maxDepth; i++ {
		parent, err := tx.Get(parentKey(cursor), nil)
		if err != nil {
			if errors.Is(err, leveldb.ErrNotFound) {
				return nil
			}
			return err
		}
		copy(cursor[:], parent)
		has, err := tx.Has(blockKey(cursor), nil)
		if err != nil {
			return err
		}
		if !has {
			return nil
		}
	}
	return c.deleteBlock(tx, cursor)
}

func (c *LevelDB) deleteBlock(tx *leveldb.Transaction, id ergo.BlockId) error {
	raw, err := tx.Get(blockKey(id), nil)
	if err != nil {
		return err
	}
	var blk chainsync.Block
	if err := json.Unmarshal(raw, &blk); err != nil {
		return err
	}
	if err := tx.Delete(blockKey(id), nil); err != nil {
		return err
	}
	if err := tx.Delete(parentKey(id), nil); err != nil {
		return err
	}
	for _, blkTx := range blk.Transactions {
		owner, err := tx.Get(txKey(blkTx.ID), nil)
		if err != nil {
			if errors.Is(err, leveldb.ErrNotFound) {
				continue
			}
			return err
		}
		if string(owner) == string(id.Bytes()) {
			if err := tx.Delete(txKey(blkTx.ID), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *LevelDB) Exists(id ergo.BlockId) (bool, error) {
	return c.db.Has(blockKey(id), nil)
}

func (c *LevelDB) GetBestBlock() (chainsync.Block, bool, error) {
	record, ok, err := c.bestRecord()
	if err != nil || !ok {
		return chainsync.Block{}, false, err
	}
	raw, err := c.db.Get(blockKey(record.ID), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return chainsync.Block{}, false, nil
		}
		return chainsync.Block{}, false, err
	}
	var blk chainsync.Block
	if err := json.Unmarshal(raw, &blk); err != nil {
		return chainsync.Block{}, false, err
	}
	return blk, true, nil
}

func (c *LevelDB) bestRecord() (chainsync.BlockRecord, bool, error) {
	raw, err := c.db.Get(bestKey, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return chainsync.BlockRecord{}, false, nil
		}
		return chainsync.BlockRecord{}, false, err
	}
	var record chainsync.BlockRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return chainsync.BlockRecord{}, false, err
	}
	return record, true, nil
}

func (c *LevelDB) TakeBestBlock() (chainsync.Block, bool, error) {
	tx, err := c.db.OpenTransaction()
	if err != nil {
		return chainsync.Block{}, false, err
	}
	raw, err := tx.Get(bestKey, nil)
	if err != nil {
		tx.Discard()
		if errors.Is(err, leveldb.ErrNotFound) {
			return chainsync.Block{}, false, nil
		}
		return chainsync.Block{}, false, err
	}
	var record chainsync.BlockRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		tx.Discard()
		return chainsync.Block{}, false, err
	}
	rawBlk, err := tx.Get(blockKey(record.ID), nil)
	if err != nil {
		tx.Discard()
		if errors.Is(err, leveldb.ErrNotFound) {
			return chainsync.Block{}, false, nil
		}
		return chainsync.Block{}, false, err
	}
	var blk chainsync.Block
	if err := json.Unmarshal(rawBlk, &blk); err != nil {
		tx.Discard()
		return chainsync.Block{}, false, err
	}
	if err := c.deleteBlock(tx, blk.ID); err != nil {
		tx.Discard()
		return chainsync.Block{}, false, err
	}
	// The parent becomes the new head, unless it has already been evicted.
	hasParent, err := tx.Has(blockKey(blk.ParentID), nil)
	if err != nil {
		tx.Discard()
		return chainsync.Block{}, false, err
	}
	if hasParent {
		parentRecord, err := json.Marshal(chainsync.BlockRecord{ID: blk.ParentID, Height: blk.Height - 1})
		if err != nil {
			tx.Discard()
			return chainsync.Block{}, false, err
		}
		if err := tx.Put(bestKey, parentRecord, nil); err != nil {
			tx.Discard()
			return chainsync.Block{}, false, err
		}
	} else {
		if err := tx.Delete(bestKey, nil); err != nil {
			tx.Discard()
			return chainsync.Block{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return chainsync.Block{}, false, err
	}
	return blk, true, nil
}

func (c *LevelDB) HasTransaction(id ergo.TxId) (bool, error) {
	return c.db.Has(txKey(id), nil)
}
