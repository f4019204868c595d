package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/rawblock/tradeloop-engine/internal/api"
	"github.com/rawblock/tradeloop-engine/internal/config"
	"github.com/rawblock/tradeloop-engine/internal/persistence"
	"github.com/rawblock/tradeloop-engine/internal/tenant"
	"github.com/rawblock/tradeloop-engine/internal/orchestrator"
)

func main() {
	log.Println("Starting RawBlock Trade Loop Discovery Engine...")

	cfg := config.Load()

	var dbStore *persistence.PostgresStore
	if cfg.DatabaseURL != "" {
		store, err := persistence.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, continuing with snapshot-file persistence only. Error: %v", err)
		} else {
			dbStore = store
			defer dbStore.Close()
			if err := dbStore.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	}

	wsHub := api.NewHub()
	go wsHub.Run()

	onEvict := func(t *tenant.Tenant) {
		log.Printf("Evicting idle tenant %s, flushing snapshot", t.ID)
		if dbStore == nil {
			snap := t.Store.Snapshot()
			path := cfg.SnapshotDir + "/" + t.ID + ".snap"
			if err := persistence.WriteSnapshot(path, t.ID, snap.Wallets, snap.Items); err != nil {
				log.Printf("Warning: failed to write snapshot for tenant %s: %v", t.ID, err)
			}
		}
		notice, _ := json.Marshal(map[string]string{"type": "tenant_evicted", "tenantId": t.ID})
		wsHub.Broadcast(notice)
	}

	registry := tenant.New(10000, time.Duration(cfg.TenantIdleTTLS)*time.Second, onEvict)
	orch := orchestrator.New(registry, cfg.Defaults)

	r := api.SetupRouter(orch, registry, cfg.APIAuthToken, wsHub)

	log.Printf("Engine listening on %s\n", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
