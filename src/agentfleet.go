package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/helix-markets/agentfleet/src/api"
	"github.com/helix-markets/agentfleet/src/config"
	"github.com/helix-markets/agentfleet/src/custody"
	"github.com/helix-markets/agentfleet/src/data"
	"github.com/helix-markets/agentfleet/src/decision"
	"github.com/helix-markets/agentfleet/src/exchange"
	"github.com/helix-markets/agentfleet/src/execution"
	"github.com/helix-markets/agentfleet/src/orchestrator"
)

func main() {
	_ = godotenv.Load()

	db := data.MustMySQL(config.MySQLDSN())
	cfg := config.Load(db)

	logger := log.New(os.Stdout, "[agentfleet] ", log.LstdFlags|log.Lmsgprefix)
	store := data.NewStore(db)

	var counter orchestrator.TradeCounter
	if cfg.RedisURL != "" {
		counter = data.NewRedisTradeCounter(data.MustRedis(cfg.RedisURL))
	} else {
		logger.Printf("redis not configured, using in-process trade counter")
		counter = data.NewMemoryTradeCounter()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bindings, err := store.CustodyBindings(ctx)
	if err != nil {
		log.Fatalf("custody bindings: %v", err)
	}
	resolver := custody.NewStaticResolver(bindings, cfg.SignerURL)

	venue := exchange.NewClient(exchange.Config{
		BaseURL: cfg.ExchangeURL,
		Timeout: cfg.ExchangeTimeout,
		Logger:  logger,
	})
	router := execution.NewRouter(resolver, venue, cfg.BuilderAddress, cfg.BuilderFeeBps, logger)

	sup := orchestrator.New(store, counter, venue, resolver, router, decision.NewMomentum(), orchestrator.Options{
		DefaultInterval: cfg.DefaultTickInterval,
		MinInterval:     cfg.MinTickInterval,
		MaxInterval:     cfg.MaxTickInterval,
		MaxRunners:      cfg.MaxRunners,
	}, logger)

	if err := sup.Initialize(ctx); err != nil {
		logger.Printf("initialize: %v", err)
	}

	go autoHealLoop(ctx, sup, cfg.AutoHealInterval, logger)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.New(cfg, sup, store, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Printf("control API listening on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	cancel()
	sup.StopAll()

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	_ = httpSrv.Shutdown(shutCtx)
}

// autoHealLoop periodically restarts schedulers for active agents observed
// degraded or unhealthy.
func autoHealLoop(ctx context.Context, sup *orchestrator.Supervisor, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := sup.AutoHeal(ctx)
			if err != nil {
				logger.Printf("auto-heal: %v", err)
				continue
			}
			if len(res.Healed) > 0 || len(res.Failing) > 0 {
				logger.Printf("auto-heal: healed=%v failing=%v", res.Healed, res.Failing)
			}
		}
	}
}
