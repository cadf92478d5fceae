// Command sn77server is the composition root for the subnet-77 incentive
// service: it loads configuration, constructs every collaborator
// (persistent store, chain RPC clients, the holder/roster snapshots, vote
// intake, address claim, the position fetcher, and the scheduler), then
// serves the HTTP surface with graceful shutdown, mirroring
// walletserver/main.go's config -> service -> controller -> routes wiring.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CreativeBuilds/sn77-server/cmd/sn77server/server"
	"github.com/CreativeBuilds/sn77-server/internal/chainrpc"
	"github.com/CreativeBuilds/sn77-server/internal/claim"
	"github.com/CreativeBuilds/sn77-server/internal/csvlog"
	"github.com/CreativeBuilds/sn77-server/internal/holders"
	"github.com/CreativeBuilds/sn77-server/internal/metrics"
	"github.com/CreativeBuilds/sn77-server/internal/oracle"
	"github.com/CreativeBuilds/sn77-server/internal/positions"
	"github.com/CreativeBuilds/sn77-server/internal/roster"
	"github.com/CreativeBuilds/sn77-server/internal/scheduler"
	"github.com/CreativeBuilds/sn77-server/internal/store"
	"github.com/CreativeBuilds/sn77-server/internal/subgraph"
	"github.com/CreativeBuilds/sn77-server/internal/subnetchain"
	"github.com/CreativeBuilds/sn77-server/internal/substraterpc"
	"github.com/CreativeBuilds/sn77-server/internal/version"
	"github.com/CreativeBuilds/sn77-server/internal/votes"
	"github.com/CreativeBuilds/sn77-server/pkg/config"
)

func newLogger() *logrus.Logger {
	log := logrus.New()
	if os.Getenv("LOG_PRETTY") == "true" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func main() {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("sn77server: failed to load configuration")
	}

	st, err := store.Open(cfg.SQLitePath, log)
	if err != nil {
		log.WithError(err).Fatal("sn77server: failed to open store")
	}

	evmChain, err := chainrpc.Dial(cfg.RPCURL, cfg.FactoryAddr)
	if err != nil {
		log.WithError(err).Fatal("sn77server: failed to dial EVM RPC")
	}

	substrate := substraterpc.New(cfg.SubstrateRPCURL, cfg.RequestTimeout)
	subnetChain := subnetchain.New(substrate)

	csvLogger := csvlog.New(cfg.LogDir, cfg.LogCSV)

	subnetID := uint16(cfg.SubnetID)
	hs := holders.New(subnetChain, subnetID, csvLogger, log)
	sr := roster.New(subnetChain, subnetID, log)

	vi := votes.New(st, evmChain, hs, log)
	ac := claim.New(st, evmChain, sr, log)

	subgraphClient := subgraph.New(cfg.SubgraphURL, cfg.SubgraphAPIKey, cfg.RequestTimeout, log)
	// oracle.New returns a typed nil *oracle.Client when disabled; only
	// assign it to the PriceOracle interface when it is actually usable, or
	// Fetcher's "oracle == nil" check would see a non-nil interface wrapping
	// a nil pointer.
	var priceOracle positions.PriceOracle
	if oc := oracle.New(cfg.OracleURL, cfg.RequestTimeout, log); oc != nil {
		priceOracle = oc
	}
	positionFetcher := positions.NewFetcher(subgraphClient, st, priceOracle, log)

	ver, err := version.ReadFile(cfg.VersionFile)
	if err != nil {
		log.WithError(err).Fatal("sn77server: failed to read version file")
	}

	reg := metrics.New()

	var pruners []scheduler.Pruner
	for _, l := range vi.Limiters() {
		pruners = append(pruners, l)
	}
	for _, l := range ac.Limiters() {
		pruners = append(pruners, l)
	}

	sched := scheduler.New(hs, sr, st, evmChain, pruners, reg, log)

	startCtx, cancelStart := context.WithTimeout(context.Background(), cfg.RequestTimeout*6)
	defer cancelStart()
	if err := sched.Start(startCtx); err != nil {
		log.WithError(err).Fatal("sn77server: scheduler startup failed")
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sched.Run(runCtx)

	router := server.NewRouter(server.Deps{
		Store:     st,
		Votes:     vi,
		Claim:     ac,
		Holders:   hs,
		Roster:    sr,
		Positions: positionFetcher,
		Metrics:   reg,
		Version:   ver,
		StartedAt: time.Now().UTC(),
		Log:       log,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("sn77server: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("sn77server: http server failed")
		}
	}()

	<-runCtx.Done()
	log.Info("sn77server: shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("sn77server: graceful shutdown failed")
	}

	<-sched.Done()
}
