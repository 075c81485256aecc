package events

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ergolabs/ergo-streaming/chainsync"
	"github.com/ergolabs/ergo-streaming/ergo"
	"github.com/ergolabs/ergo-streaming/mempoolsync"
)

// BlockEventBody is the payload shared by apply and unapply block events.
type BlockEventBody struct {
	Timestamp uint64 `json:"timestamp"`
	Height    uint32 `json:"height"`
	ID        string `json:"id"`
	NumTxs    int    `json:"num_txs"`
}

// BlockEvent serialises as a single-variant object:
// {"BlockApply": {...}} or {"BlockUnapply": {...}}.
type BlockEvent struct {
	BlockApply   *BlockEventBody `json:"BlockApply,omitempty"`
	BlockUnapply *BlockEventBody `json:"BlockUnapply,omitempty"`
}

// BlockEventFrom projects an upgrade onto its block event.
func BlockEventFrom(upgrade chainsync.ChainUpgrade) BlockEvent {
	switch u := upgrade.(type) {
	case chainsync.RollForward:
		body := blockEventBody(u.Block)
		return BlockEvent{BlockApply: &body}
	case chainsync.RollBackward:
		body := blockEventBody(u.Block)
		return BlockEvent{BlockUnapply: &body}
	default:
		panic(fmt.Sprintf("unknown chain upgrade %T", upgrade))
	}
}

func blockEventBody(b chainsync.Block) BlockEventBody {
	return BlockEventBody{
		Timestamp: b.Timestamp,
		Height:    b.Height,
		ID:        b.ID.String(),
		NumTxs:    len(b.Transactions),
	}
}

// BlockID returns the event's subject block id, used as the message key.
func (e BlockEvent) BlockID() string {
	if e.BlockApply != nil {
		return e.BlockApply.ID
	}
	return e.BlockUnapply.ID
}

// TxEvent is a per-transaction projection of an upgrade, carrying the
// context of the containing block.
type TxEvent struct {
	Applied     bool
	Timestamp   int64
	Tx          ergo.BlockTransaction
	BlockHeight int32
	BlockID     string
}

// TxEventsFrom expands an upgrade into one event per transaction, in block
// order.
func TxEventsFrom(upgrade chainsync.ChainUpgrade) []TxEvent {
	var (
		blk     chainsync.Block
		applied bool
	)
	switch u := upgrade.(type) {
	case chainsync.RollForward:
		blk, applied = u.Block, true
	case chainsync.RollBackward:
		blk, applied = u.Block, false
	default:
		panic(fmt.Sprintf("unknown chain upgrade %T", upgrade))
	}
	out := make([]TxEvent, len(blk.Transactions))
	for i, tx := range blk.Transactions {
		out[i] = TxEvent{
			Applied:     applied,
			Timestamp:   int64(blk.Timestamp),
			Tx:          tx,
			BlockHeight: int32(blk.Height),
			BlockID:     blk.ID.String(),
		}
	}
	return out
}

type txEventBody struct {
	Timestamp int64  `json:"timestamp"`
	Height    int32  `json:"height"`
	Tx        string `json:"tx"`
	BlockID   string `json:"block_id"`
}

type txEventEnvelope struct {
	Applied   *txEventBody `json:"AppliedEvent,omitempty"`
	Unapplied *txEventBody `json:"UnappliedEvent,omitempty"`
}

// Envelope serialises the event for the wire: JSON with the transaction
// embedded as base64 over its CBOR encoding.
func (e TxEvent) Envelope() ([]byte, error) {
	raw, err := EncodeBlockTransaction(e.Tx)
	if err != nil {
		return nil, err
	}
	body := txEventBody{
		Timestamp: e.Timestamp,
		Height:    e.BlockHeight,
		Tx:        base64.StdEncoding.EncodeToString(raw),
		BlockID:   e.BlockID,
	}
	envelope := txEventEnvelope{}
	if e.Applied {
		envelope.Applied = &body
	} else {
		envelope.Unapplied = &body
	}
	return json.Marshal(envelope)
}

type mempoolAccepted struct {
	Tx string `json:"tx"`
}

type mempoolWithdrawn struct {
	Tx        string `json:"tx"`
	Confirmed bool   `json:"confirmed"`
}

// MempoolEvent serialises as {"TxAccepted": {...}} or {"TxWithdrawn":
// {...}}; a confirmed withdrawal is a TxWithdrawn with confirmed=true.
type MempoolEvent struct {
	TxAccepted  *mempoolAccepted  `json:"TxAccepted,omitempty"`
	TxWithdrawn *mempoolWithdrawn `json:"TxWithdrawn,omitempty"`
}

// MempoolEventFrom converts a mempool update into its wire event.
func MempoolEventFrom(upd mempoolsync.MempoolUpdate) (MempoolEvent, error) {
	raw, err := EncodeTransaction(upd.Tx)
	if err != nil {
		return MempoolEvent{}, err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	switch upd.Kind {
	case mempoolsync.TxAccepted:
		return MempoolEvent{TxAccepted: &mempoolAccepted{Tx: encoded}}, nil
	case mempoolsync.TxWithdrawn:
		return MempoolEvent{TxWithdrawn: &mempoolWithdrawn{Tx: encoded, Confirmed: false}}, nil
	case mempoolsync.TxConfirmed:
		return MempoolEvent{TxWithdrawn: &mempoolWithdrawn{Tx: encoded, Confirmed: true}}, nil
	default:
		return MempoolEvent{}, fmt.Errorf("unknown mempool update kind %d", upd.Kind)
	}
}
