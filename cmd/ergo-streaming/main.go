package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ergolabs/ergo-streaming/chainsync"
	"github.com/ergolabs/ergo-streaming/chainsync/cache"
	"github.com/ergolabs/ergo-streaming/config"
	"github.com/ergolabs/ergo-streaming/events"
	"github.com/ergolabs/ergo-streaming/mempoolsync"
	"github.com/ergolabs/ergo-streaming/metrics"
	"github.com/ergolabs/ergo-streaming/node"
	"github.com/ergolabs/ergo-streaming/sink"
)

var configFlag = &cli.StringFlag{
	Name:     "config",
	Aliases:  []string{"c"},
	Usage:    "path to the TOML configuration file",
	Required: true,
}

func main() {
	app := &cli.App{
		Name:   "ergo-streaming",
		Usage:  "follow an Ergo node and stream chain and mempool events",
		Flags:  []cli.Flag{configFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.Load(cliCtx.String(configFlag.Name))
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout()}
	client := node.NewClient(log.New("target", "ergo_network"), httpClient, cfg.NodeAddr)

	chainCache, err := cache.OpenLevelDB(cfg.ChainCacheDBPath, cfg.ChainCacheRollbackDepth)
	if err != nil {
		return err
	}
	defer chainCache.Close()
	mempoolCache, err := cache.OpenLevelDB(cfg.MempoolCacheDBPath, cfg.ChainCacheRollbackDepth)
	if err != nil {
		return err
	}
	defer mempoolCache.Close()

	m := metrics.New()
	syncCfg := chainsync.Config{
		StartingHeight: cfg.ChainSyncStartingHeight,
		BatchSize:      cfg.ChainSyncBatchSize,
		ChunkSize:      cfg.ChainSyncChunkSize,
		Throttle:       cfg.ChainSyncThrottle(),
	}

	tipReached := chainsync.NewTipSignal()
	chainSync, err := chainsync.New(log.New("target", "chain_sync"), syncCfg, client, chainCache, tipReached, m)
	if err != nil {
		return err
	}
	mempoolChainSync, err := chainsync.New(log.New("target", "mempool_chain_sync"), syncCfg, client, mempoolCache, nil, chainsync.NoopMetrics)
	if err != nil {
		return err
	}
	mempoolSync := mempoolsync.New(log.New("target", "mempool_sync"), mempoolsync.Config{
		SyncInterval: cfg.MempoolSyncInterval(),
		PageLimit:    cfg.MempoolPageLimit,
	}, client, mempoolChainSync, mempoolCache, m)

	sinkLog := log.New("target", "kafka_sink")
	blocksProducer := sink.NewProducer(sinkLog, cfg.DownstreamEndpoint, cfg.BlocksTopic)
	defer blocksProducer.Close()
	txProducer := sink.NewProducer(sinkLog, cfg.DownstreamEndpoint, cfg.TxTopic)
	defer txProducer.Close()
	mempoolProducer := sink.NewProducer(sinkLog, cfg.DownstreamEndpoint, cfg.MempoolTopic)
	defer mempoolProducer.Close()

	upgrades := make(chan chainsync.ChainUpgrade, 64)
	mempoolUpdates := make(chan mempoolsync.MempoolUpdate, 64)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return chainSync.Stream(ctx, upgrades) })
	g.Go(func() error {
		return events.PumpChainEvents(ctx, log.New("target", "event_source"), upgrades, blocksProducer, txProducer)
	})
	g.Go(func() error { return mempoolSync.Run(ctx, mempoolUpdates) })
	g.Go(func() error {
		return events.PumpMempoolEvents(ctx, log.New("target", "mempool_event"), mempoolUpdates, mempoolProducer)
	})
	g.Go(func() error {
		select {
		case <-tipReached.Done():
			log.Info("chain tip reached, waiting for new blocks")
		case <-ctx.Done():
		}
		return nil
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, m) })
	}

	log.Info("ergo-streaming started", "node", cfg.NodeAddr, "starting_height", cfg.ChainSyncStartingHeight)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("ergo-streaming stopped")
	return nil
}

func setupLogging(level string) error {
	lvl, err := log.LvlFromString(level)
	if err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(useColor))
	log.Root().SetHandler(log.LvlFilterHandler(lvl, handler))
	return nil
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
