package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/mezonai/herder/config"
	"github.com/mezonai/herder/events"
	"github.com/mezonai/herder/fba"
	"github.com/mezonai/herder/gateway"
	"github.com/mezonai/herder/herder"
	"github.com/mezonai/herder/logx"
	"github.com/mezonai/herder/monitoring"
	"github.com/mezonai/herder/scheduler"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Error("NODE", "crashed:", r, string(debug.Stack()))
			os.Exit(1)
		}
	}()

	configPath := flag.String("config", "config/herder.yml", "path to herder.yml")
	tuningPath := flag.String("tuning", "", "optional path to an .ini tuning overrides file")
	dbPath := flag.String("db", "./herder.db", "path to the ledger gateway's bbolt file")
	metricsAddr := flag.String("metrics-addr", ":9100", "address to serve /metrics on")
	flag.Parse()

	cfg, err := config.LoadHerderConfig(*configPath)
	if err != nil {
		log.Fatalf("load herder config: %v", err)
	}
	if *tuningPath != "" {
		tuning, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("load tuning config: %v", err)
		}
		if tuning.LedgerValidityBracket != 0 {
			cfg.LedgerValidityBracket = uint64(tuning.LedgerValidityBracket)
		}
		if tuning.ExpLedgerTimespanSeconds != 0 {
			cfg.ExpLedgerTimespanSeconds = int64(tuning.ExpLedgerTimespanSeconds)
		}
		if tuning.NodeExpirationSeconds != 0 {
			cfg.NodeExpirationSeconds = int64(tuning.NodeExpirationSeconds)
		}
	}

	privKey, err := config.LoadEd25519PrivKey(cfg.ValidationKeyPath)
	if err != nil {
		log.Fatalf("load validation key: %v", err)
	}

	herderCfg, err := herder.ConfigFromHerderConfig(cfg, privKey)
	if err != nil {
		log.Fatalf("build herder config: %v", err)
	}

	ledgerGateway, err := gateway.NewBoltLedgerGateway(*dbPath, cfg.DesiredBaseFee)
	if err != nil {
		log.Fatalf("open ledger gateway: %v", err)
	}
	defer ledgerGateway.Close()

	// The overlay (peer transport and wire encoding) is out of this
	// repository's scope; an embedding application wires a real
	// OverlayGateway in here. InMemoryOverlay keeps this entrypoint
	// runnable standalone for local experimentation.
	overlay := gateway.NewInMemoryOverlay()

	kernel := fba.NewFakeKernel(herderCfg.SelfNodeID, herderCfg.SecretKey, herderCfg.LocalQuorumSet)

	bus := events.NewEventBus()

	h := herder.New(herderCfg, kernel, ledgerGateway, overlay, bus, scheduler.RealClock())
	_ = h

	monitoring.InitMetrics()
	mux := http.NewServeMux()
	monitoring.RegisterMetrics(mux)
	logx.Info("NODE", "serving metrics on "+*metricsAddr)
	go func() {
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logx.Error("NODE", "metrics server stopped:", err)
		}
	}()

	select {}
}
