package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"ipnft-bridge/internal/api"
	"ipnft-bridge/internal/bridge"
	"ipnft-bridge/internal/config"
	"ipnft-bridge/internal/repository"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	configPath := os.Getenv("BRIDGE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Println("Initializing IPNFT bridge reconciliation engine...")
	log.Printf("DB: %s", redactDatabaseURL(cfg.DatabaseURL))
	log.Printf("Chain RPC: %s (chain id %d)", cfg.ChainRPCURL, cfg.ChainID)
	log.Printf("Admin Port: %d", cfg.AdminPort)

	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain, err := ethclient.DialContext(ctx, cfg.ChainRPCURL)
	if err != nil {
		log.Fatalf("failed to connect to chain rpc: %v", err)
	}
	defer chain.Close()

	resolver, err := bridge.NewMultisigResolver(cfg.ChainID, "")
	if err != nil {
		log.Fatalf("failed to build multisig resolver: %v", err)
	}

	kamuClient := bridge.NewHTTPKamuNodeClient(cfg.KamuNodeEndpoint, cfg.KamuNodeToken)
	applier := bridge.NewKamuNodeApplier(kamuClient)

	ignoreUids := make(map[bridge.IpnftUid]bool, len(cfg.IgnoreProjectUids))
	for _, raw := range cfg.IgnoreProjectUids {
		uid, err := bridge.ParseIpnftUid(raw)
		if err != nil {
			log.Printf("skipping malformed ignore_project_uids entry %q: %v", raw, err)
			continue
		}
		ignoreUids[uid] = true
	}
	syncer := bridge.NewCatalogueSyncer(kamuClient, ignoreUids, cfg.CataloguePullInterval())

	state := bridge.NewAppState()
	state.OnAudit = func(entry bridge.AuditEntry) {
		api.BroadcastAuditEntry(entry)
		mirrorCtx, mirrorCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer mirrorCancel()
		if err := repo.MirrorAudit(mirrorCtx, time.Now(), entry.Reason, entry.Kind, entry.Operations); err != nil {
			log.Printf("[audit_mirror] failed to persist audit entry: %v", err)
		}
	}

	loopCfg := bridge.Config{
		ChainID:                  cfg.ChainID,
		IpnftContractAddress:     common.HexToAddress(cfg.IpnftContractAddress),
		IpnftContractBirthBlock:  cfg.IpnftContractBirthBlock,
		TokenizerContractAddress: common.HexToAddress(cfg.TokenizerContractAddress),
		TokenizerBirthBlock:      cfg.TokenizerBirthBlock,
		CataloguePullInterval:    cfg.CataloguePullInterval(),
		IterationDelay:           cfg.IterationDelay(),
		IgnoreProjectUids:        ignoreUids,
	}
	loop := bridge.NewLoopController(loopCfg, chain, resolver, syncer, applier, state)

	if saved, err := repo.LoadCheckpoint(ctx, "bridge_loop"); err != nil {
		log.Printf("[checkpoint] failed to load prior checkpoint, starting from contract birth blocks: %v", err)
	} else if saved > 0 {
		log.Printf("[checkpoint] mirrored checkpoint at block %d found, but the engine always bootstraps from genesis on restart", saved)
	}

	log.Println("Running bootstrap indexing pass (Init)...")
	if err := loop.Init(ctx); err != nil {
		log.Fatalf("bridge init failed: %v", err)
	}
	log.Println("Bootstrap indexing pass complete, entering update loop.")

	api.BuildCommit = BuildCommit
	adminServer := api.NewServer(state, loop, cfg.JWTSecret, cfg.AdminPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	go func() {
		log.Printf("Starting admin API server on :%d", cfg.AdminPort)
		if err := adminServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin API server failed: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.RunUpdateLoop(ctx); err != nil && err != context.Canceled {
			log.Printf("update loop stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var height uint64
				state.WithReadLock(func(s *bridge.AppState) { height = s.LatestIndexedBlock })
				checkpointCtx, checkpointCancel := context.WithTimeout(ctx, 10*time.Second)
				if err := repo.SaveCheckpoint(checkpointCtx, "bridge_loop", height); err != nil {
					log.Printf("[checkpoint] failed to mirror checkpoint: %v", err)
				}
				checkpointCancel()
			}
		}
	}()

	<-sigChan
	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	adminServer.Shutdown(shutdownCtx)
	shutdownCancel()
	cancel()
	wg.Wait()
}

func redactDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" {
		if u.User != nil {
			user := u.User.Username()
			if user == "" {
				user = "user"
			}
			u.User = url.UserPassword(user, "****")
		}
		u.RawQuery = ""
		return u.String()
	}

	re := regexp.MustCompile(`(?i)(postgres(?:ql)?://[^:/?#]+):([^@]+)@`)
	if re.MatchString(raw) {
		return re.ReplaceAllString(raw, `$1:****@`)
	}
	re = regexp.MustCompile(`(?i)(password=)([^\s]+)`)
	return re.ReplaceAllString(raw, `$1****`)
}
