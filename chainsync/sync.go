package chainsync

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ergolabs/ergo-streaming/node"
)

// Metrics is the follower's instrumentation hook.
type Metrics interface {
	RecordRollForward(height uint32)
	RecordRollBackward(height uint32)
	RecordRPCError(kind string)
}

type noopMetrics struct{}

func (noopMetrics) RecordRollForward(uint32)  {}
func (noopMetrics) RecordRollBackward(uint32) {}
func (noopMetrics) RecordRPCError(string)     {}

// NoopMetrics discards all measurements.
var NoopMetrics Metrics = noopMetrics{}

// Config tunes a ChainSync instance.
type Config struct {
	// StartingHeight is the operator-configured floor. A block at this
	// height is accepted without a parent linkage check (the cold-start
	// anchor).
	StartingHeight uint32
	// BatchSize is the number of heights probed per step.
	BatchSize uint32
	// ChunkSize bounds the number of ids per full-block request.
	ChunkSize int
	// Throttle is the delay inserted after any no-progress step.
	Throttle time.Duration
}

// ChainSync tails the node, reconciles the local cache with the canonical
// chain, and produces a totally-ordered stream of upgrades. A single
// instance must not be driven concurrently: the step is a sequential task.
type ChainSync struct {
	log     log.Logger
	cfg     Config
	client  node.Network
	metrics Metrics

	// The cache lock is held across the exists/append/take calls of one
	// classification iteration so that linkage decisions stay consistent.
	cacheMu sync.Mutex
	cache   ChainCache

	state *SyncState

	delayMu sync.Mutex
	delay   *time.Timer

	tipReached *TipSignal
}

// New builds a follower resuming from the cache head: the cursor starts at
// the cached best height when it is above the configured floor, so restarts
// continue where the previous run left off.
func New(lg log.Logger, cfg Config, client node.Network, cache ChainCache, tipReached *TipSignal, metrics Metrics) (*ChainSync, error) {
	if metrics == nil {
		metrics = NoopMetrics
	}
	startAt := cfg.StartingHeight
	best, ok, err := cache.GetBestBlock()
	if err != nil {
		return nil, err
	}
	if ok {
		lg.Info("resuming from cached best block", "id", best.ID, "height", best.Height)
		if best.Height > startAt {
			startAt = best.Height
		}
	}
	return &ChainSync{
		log:        lg,
		cfg:        cfg,
		client:     client,
		metrics:    metrics,
		cache:      cache,
		state:      NewSyncState(startAt),
		tipReached: tipReached,
	}, nil
}

// NextHeight exposes the cursor, mostly for tests and metrics.
func (s *ChainSync) NextHeight() uint32 {
	return s.state.NextHeight()
}

// TryUpgrade performs a single step of the follower: probe the tip, fetch a
// batch, classify each block as skip, apply or rollback trigger. It returns
// the upgrades produced, or nil when no progress is available right now.
// Every error collapses to no progress; unbounded retry is safe because
// cache writes are idempotent and linkage-checked.
func (s *ChainSync) TryUpgrade(ctx context.Context) []ChainUpgrade {
	nextHeight := s.state.NextHeight()
	s.log.Trace("processing height batch", "from", nextHeight)

	// Probe the tip first to avoid requesting past the end of the chain.
	bestHeight, err := s.client.BestHeight(ctx)
	if err != nil {
		s.metrics.RecordRPCError(node.ClassifyError(err))
		s.log.Error("error getting best height", "err", err)
		return nil
	}
	if nextHeight > bestHeight {
		s.log.Trace("no new blocks available", "next", nextHeight, "best", bestHeight)
		return nil
	}

	blocks, err := s.client.BlocksBatch(ctx, nextHeight, s.cfg.BatchSize, s.cfg.ChunkSize)
	if err != nil {
		kind := node.ClassifyError(err)
		s.metrics.RecordRPCError(kind)
		switch kind {
		case "no_block":
			s.log.Trace("no blocks found", "height", nextHeight)
		case "decode":
			s.log.Error("json decoding error", "err", err)
		default:
			s.log.Error("error fetching blocks batch", "err", err, "kind", kind)
		}
		return nil
	}
	s.log.Trace("got blocks from node", "count", len(blocks))

	var upgrades []ChainUpgrade
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for _, fb := range blocks {
		blockHeight := fb.Header.Height
		// The node pads the slice with the current top block once the
		// requested range overruns the tip. Stop here; this is a
		// no-new-block situation for the rest of the batch.
		if blockHeight < nextHeight {
			s.log.Trace("received block below requested height, stopping batch",
				"height", blockHeight, "requested", nextHeight)
			break
		}

		exists, err := s.cache.Exists(fb.Header.ID)
		if err != nil {
			s.log.Error("cache lookup failed", "err", err)
			break
		}
		if exists {
			s.log.Trace("skipping block already in cache", "id", fb.Header.ID, "height", blockHeight)
			s.state.Upgrade()
			continue
		}

		linked, err := s.cache.Exists(fb.Header.ParentID)
		if err != nil {
			s.log.Error("cache lookup failed", "err", err)
			break
		}
		if linked || blockHeight == s.cfg.StartingHeight {
			blk := BlockFromFullBlock(fb)
			if err := s.cache.AppendBlock(blk); err != nil {
				s.log.Error("cache append failed", "err", err, "id", blk.ID)
				break
			}
			s.state.Upgrade()
			s.metrics.RecordRollForward(blk.Height)
			upgrades = append(upgrades, RollForward{Block: blk})
			continue
		}

		// The local chain no longer links to what the node serves:
		// unapply the best block, then stop the batch so the next step
		// re-probes from the new cursor.
		discarded, ok, err := s.cache.TakeBestBlock()
		if err != nil {
			s.log.Error("cache rollback failed", "err", err)
			break
		}
		if ok {
			s.log.Info("chain does not link, rolling back", "discarded", discarded.ID, "height", discarded.Height)
			s.state.Downgrade()
			s.metrics.RecordRollBackward(discarded.Height)
			upgrades = append(upgrades, RollBackward{Block: discarded})
		} else {
			// Divergence deeper than the retained history. Re-anchor at
			// the configured floor; downstream consumers may see blocks
			// from that height again.
			s.log.Warn("rollback exhausted the cache, re-anchoring",
				"height", s.cfg.StartingHeight, "diverged_at", blockHeight)
			s.state.Reset(s.cfg.StartingHeight)
		}
		break
	}
	return upgrades
}

// Stream drives TryUpgrade in a pull loop, sending every upgrade to out in
// emission order. A no-progress step installs a fresh throttle delay and
// fires the tip-reached signal. Returns when ctx is cancelled.
func (s *ChainSync) Stream(ctx context.Context, out chan<- ChainUpgrade) error {
	for {
		if delay := s.takeDelay(); delay != nil {
			select {
			case <-delay.C:
			case <-ctx.Done():
				delay.Stop()
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		upgrades := s.TryUpgrade(ctx)
		if len(upgrades) == 0 {
			s.setDelay(time.NewTimer(s.cfg.Throttle))
			if s.tipReached != nil {
				s.tipReached.Signal()
			}
			continue
		}
		for _, upgrade := range upgrades {
			select {
			case out <- upgrade:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *ChainSync) takeDelay() *time.Timer {
	s.delayMu.Lock()
	defer s.delayMu.Unlock()
	delay := s.delay
	s.delay = nil
	return delay
}

func (s *ChainSync) setDelay(t *time.Timer) {
	s.delayMu.Lock()
	defer s.delayMu.Unlock()
	if s.delay != nil {
		s.delay.Stop()
	}
	s.delay = t
}
