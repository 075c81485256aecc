package events

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ergolabs/ergo-streaming/chainsync"
	"github.com/ergolabs/ergo-streaming/mempoolsync"
)

// Sink is where serialised events go. Implemented by sink.Producer.
type Sink interface {
	Send(ctx context.Context, key string, value []byte) error
}

// PumpChainEvents consumes upgrades and publishes, per upgrade, one block
// event to blocks and then the per-transaction events to txs, preserving
// the follower's emission order. Publish failures are logged and the event
// dropped; the cache has already moved on, so consumers relying on
// exactly-once must deduplicate.
func PumpChainEvents(ctx context.Context, lg log.Logger, in <-chan chainsync.ChainUpgrade, blocks, txs Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upgrade, ok := <-in:
			if !ok {
				return nil
			}
			blockEvent := BlockEventFrom(upgrade)
			raw, err := json.Marshal(blockEvent)
			if err != nil {
				lg.Error("failed to encode block event", "err", err)
				continue
			}
			if err := blocks.Send(ctx, blockEvent.BlockID(), raw); err != nil {
				lg.Error("failed to publish block event", "err", err, "block", blockEvent.BlockID())
			}
			for _, txEvent := range TxEventsFrom(upgrade) {
				envelope, err := txEvent.Envelope()
				if err != nil {
					lg.Error("failed to encode tx event", "err", err, "tx", txEvent.Tx.ID)
					continue
				}
				lg.Info("got new event", "type", txEventType(txEvent), "key", txEvent.Tx.ID)
				if err := txs.Send(ctx, string(txEvent.Tx.ID), envelope); err != nil {
					lg.Error("failed to publish tx event", "err", err, "tx", txEvent.Tx.ID)
				}
			}
		}
	}
}

func txEventType(e TxEvent) string {
	if e.Applied {
		return "AppliedTx"
	}
	return "UnappliedTx"
}

// PumpMempoolEvents consumes mempool updates and publishes them keyed by
// transaction id.
func PumpMempoolEvents(ctx context.Context, lg log.Logger, in <-chan mempoolsync.MempoolUpdate, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-in:
			if !ok {
				return nil
			}
			event, err := MempoolEventFrom(upd)
			if err != nil {
				lg.Error("failed to encode mempool event", "err", err, "tx", upd.Tx.ID)
				continue
			}
			raw, err := json.Marshal(event)
			if err != nil {
				lg.Error("failed to encode mempool event", "err", err, "tx", upd.Tx.ID)
				continue
			}
			lg.Info("got new event", "type", upd.Kind.String(), "key", upd.Tx.ID)
			if err := sink.Send(ctx, string(upd.Tx.ID), raw); err != nil {
				lg.Error("failed to publish mempool event", "err", err, "tx", upd.Tx.ID)
			}
		}
	}
}
