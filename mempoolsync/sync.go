package mempoolsync

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ergolabs/ergo-streaming/chainsync"
	"github.com/ergolabs/ergo-streaming/ergo"
	"github.com/ergolabs/ergo-streaming/node"
)

// UpdateKind says what happened to an unconfirmed transaction.
type UpdateKind int

const (
	// TxAccepted: the transaction appeared in the mempool.
	TxAccepted UpdateKind = iota
	// TxWithdrawn: the transaction left the mempool without entering a
	// recently-seen block.
	TxWithdrawn
	// TxConfirmed: the transaction left the mempool and a retained block
	// contains it.
	TxConfirmed
)

func (k UpdateKind) String() string {
	switch k {
	case TxAccepted:
		return "TxAccepted"
	case TxWithdrawn:
		return "TxWithdrawn"
	case TxConfirmed:
		return "TxConfirmed"
	default:
		return "Unknown"
	}
}

// MempoolUpdate is one observed mempool transition.
type MempoolUpdate struct {
	Kind UpdateKind
	Tx   ergo.Transaction
}

// Metrics is the mempool follower's instrumentation hook.
type Metrics interface {
	RecordMempoolEvent(kind string)
}

type noopMetrics struct{}

func (noopMetrics) RecordMempoolEvent(string) {}

// NoopMetrics discards all measurements.
var NoopMetrics Metrics = noopMetrics{}

// Config tunes a MempoolSync instance.
type Config struct {
	// SyncInterval is the polling period.
	SyncInterval time.Duration
	// PageLimit is the page size used when paginating the mempool.
	PageLimit int
}

// MempoolSync polls the node's mempool on a timer and diffs consecutive
// snapshots. It owns a ChainSync over a dedicated cache so that a
// transaction that disappears from the mempool can be told apart as
// confirmed (present in a recent block) or withdrawn.
type MempoolSync struct {
	log      log.Logger
	cfg      Config
	client   node.Network
	chain    *chainsync.ChainSync
	cache    chainsync.ChainCache
	metrics  Metrics
	snapshot map[ergo.TxId]ergo.Transaction
}

func New(lg log.Logger, cfg Config, client node.Network, chain *chainsync.ChainSync, cache chainsync.ChainCache, metrics Metrics) *MempoolSync {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	if metrics == nil {
		metrics = NoopMetrics
	}
	return &MempoolSync{
		log:      lg,
		cfg:      cfg,
		client:   client,
		chain:    chain,
		cache:    cache,
		metrics:  metrics,
		snapshot: make(map[ergo.TxId]ergo.Transaction),
	}
}

// Run ticks until ctx is cancelled, sending updates to out in observation
// order.
func (s *MempoolSync) Run(ctx context.Context, out chan<- MempoolUpdate) error {
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		updates := s.Tick(ctx)
		for _, upd := range updates {
			select {
			case out <- upd:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Tick performs one poll: advance the backing chain cache, paginate the
// mempool, and diff against the previous snapshot. Failures leave the
// snapshot untouched; the next tick retries.
func (s *MempoolSync) Tick(ctx context.Context) []MempoolUpdate {
	// Keep the block cache current first, so confirmations of transactions
	// mined since the last tick are visible below.
	for {
		if len(s.chain.TryUpgrade(ctx)) == 0 {
			break
		}
	}

	fresh, err := s.fetchAll(ctx)
	if err != nil {
		s.log.Error("failed to fetch mempool", "err", err)
		return nil
	}

	var updates []MempoolUpdate
	for id, tx := range fresh {
		if _, known := s.snapshot[id]; !known {
			s.metrics.RecordMempoolEvent(TxAccepted.String())
			updates = append(updates, MempoolUpdate{Kind: TxAccepted, Tx: tx})
		}
	}
	for id, tx := range s.snapshot {
		if _, still := fresh[id]; still {
			continue
		}
		confirmed, err := s.cache.HasTransaction(id)
		if err != nil {
			s.log.Error("tx lookup failed", "err", err, "tx", id)
			confirmed = false
		}
		if confirmed {
			s.log.Info("mempool tx confirmed", "tx", id)
			s.metrics.RecordMempoolEvent(TxConfirmed.String())
			updates = append(updates, MempoolUpdate{Kind: TxConfirmed, Tx: tx})
		} else {
			s.log.Info("mempool tx withdrawn", "tx", id)
			s.metrics.RecordMempoolEvent(TxWithdrawn.String())
			updates = append(updates, MempoolUpdate{Kind: TxWithdrawn, Tx: tx})
		}
	}
	s.snapshot = fresh
	return updates
}

// fetchAll paginates the mempool until a short page signals the end.
func (s *MempoolSync) fetchAll(ctx context.Context) (map[ergo.TxId]ergo.Transaction, error) {
	all := make(map[ergo.TxId]ergo.Transaction)
	offset := 0
	for {
		page, err := s.client.UnconfirmedTransactions(ctx, offset, s.cfg.PageLimit)
		if err != nil {
			return nil, err
		}
		for _, tx := range page {
			all[tx.ID] = tx
		}
		if len(page) < s.cfg.PageLimit {
			return all, nil
		}
		offset += len(page)
	}
}
