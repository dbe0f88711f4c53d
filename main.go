package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-sniper-bot/config"
	"solana-sniper-bot/internal/api"
	"solana-sniper-bot/internal/auth"
	"solana-sniper-bot/internal/blacklist"
	"solana-sniper-bot/internal/bot"
	"solana-sniper-bot/internal/broker"
	"solana-sniper-bot/internal/chain"
	"solana-sniper-bot/internal/coordinator"
	"solana-sniper-bot/internal/events"
	"solana-sniper-bot/internal/executor"
	"solana-sniper-bot/internal/exits"
	"solana-sniper-bot/internal/journal"
	"solana-sniper-bot/internal/logging"
	"solana-sniper-bot/internal/notification"
	"solana-sniper-bot/internal/paper"
	"solana-sniper-bot/internal/patterns"
	"solana-sniper-bot/internal/risk"
	"solana-sniper-bot/internal/stream"
	"solana-sniper-bot/internal/vault"
)

func main() {
	genConfig := flag.Bool("generate-config", false, "write a sample config.json and exit")
	rpcEndpoint := flag.String("rpc", "https://api.mainnet-beta.solana.com", "Solana RPC endpoint for live execution")
	flag.Parse()

	if *genConfig {
		if err := config.GenerateSampleConfig("config.json"); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("wrote config.json")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().Bool("dry_run", cfg.ExecutorConfig.DryRun).Msg("starting sniper bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Secrets. With Vault disabled the client is seeded from the
	// environment so dry-run needs no Vault deployment.
	secrets, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("vault client init failed")
	}
	if !secrets.IsEnabled() {
		secrets.Seed(vault.SecretDiscordWebhook, map[string]string{"url": os.Getenv("DISCORD_WEBHOOK_URL")})
		secrets.Seed(vault.SecretTelegramBot, map[string]string{
			"token":   os.Getenv("TELEGRAM_BOT_TOKEN"),
			"chat_id": os.Getenv("TELEGRAM_CHAT_ID"),
		})
		secrets.Seed(vault.SecretWalletKey, map[string]string{"key": os.Getenv("WALLET_KEY")})
	}

	// Market data broker with provider fallback chain.
	bk := broker.New(cfg.BrokerConfig, logger)
	if p := cfg.ProvidersConfig.DexScreener; p.Enabled {
		bk.AddProvider(broker.NewDexScreenerProvider(""), p.Requests, p.Window)
	}
	if p := cfg.ProvidersConfig.Gecko; p.Enabled {
		bk.AddProvider(broker.NewGeckoTerminalProvider("", "solana"), p.Requests, p.Window)
	}
	if p := cfg.ProvidersConfig.Jupiter; p.Enabled {
		bk.AddProvider(broker.NewJupiterPriceProvider(""), p.Requests, p.Window)
	}

	riskMgr := risk.NewManager(cfg.RiskConfig, cfg.PaperConfig.StartingBalance, logger)
	engine := paper.NewEngine(cfg.PaperConfig.StartingBalance, logger)

	// Position snapshots survive restarts when Redis is configured.
	var snapshots *paper.SnapshotStore
	if cfg.RedisConfig.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, snapshots disabled")
		} else {
			snapshots = paper.NewSnapshotStore(rdb, logger)
		}
	}

	// Execution path: dry-run synthesizes everything locally; live mode
	// quotes through Jupiter and submits over RPC.
	var exec *executor.Executor
	var conn chain.ConnectionProvider
	if cfg.ExecutorConfig.DryRun {
		quoter := executor.NewDryRunQuoter(func(mint string) float64 {
			data, err := bk.GetTokenData(ctx, mint)
			if err != nil || data.PriceUSD == nil {
				return 0
			}
			return *data.PriceUSD
		})
		exec = executor.New(cfg.ExecutorConfig, quoter, chain.MockSigner{}, nil, riskMgr, logger)
	} else {
		walletKey := secrets.GetValue(ctx, vault.SecretWalletKey, "key")
		if walletKey == "" {
			logger.Fatal().Msg("live mode requires a wallet key in vault or WALLET_KEY")
		}
		rpc, err := chain.NewRPCClient([]string{*rpcEndpoint}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("rpc client init failed")
		}
		conn = rpc
		signer, err := chain.NewWalletSigner(walletKey, conn)
		if err != nil {
			logger.Fatal().Err(err).Msg("wallet signer init failed")
		}
		exec = executor.New(cfg.ExecutorConfig, executor.NewJupiterQuoter(""), signer, conn, riskMgr, logger)
	}

	bl, err := blacklist.Load(cfg.BlacklistPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("blacklist load failed")
	}

	// Notifications.
	notifier := notification.NewManager(logger)
	notifier.AddNotifier(notification.NewLogNotifier(logger))
	if cfg.NotificationConfig.Enabled {
		if d := cfg.NotificationConfig.Discord; d.Enabled {
			url := d.WebhookURL
			if url == "" {
				url = secrets.GetValue(ctx, vault.SecretDiscordWebhook, "url")
			}
			notifier.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{WebhookURL: url, Enabled: true}))
		}
		if tg := cfg.NotificationConfig.Telegram; tg.Enabled {
			token, chatID := tg.BotToken, tg.ChatID
			if token == "" {
				token = secrets.GetValue(ctx, vault.SecretTelegramBot, "token")
				chatID = secrets.GetValue(ctx, vault.SecretTelegramBot, "chat_id")
			}
			notifier.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{BotToken: token, ChatID: chatID, Enabled: true}))
		}
	}

	// Trade journal is optional.
	var jrnl *journal.Journal
	if cfg.JournalConfig.Enabled {
		jrnl, err = journal.New(ctx, cfg.JournalConfig, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("journal unavailable, trades will not be persisted")
		} else {
			defer jrnl.Close()
		}
	}

	bus := events.NewBus()
	bus.Subscribe(events.EventBreakerTripped, func(e events.Event) {
		name, _ := e.Data["breaker"].(string)
		reason, _ := e.Data["reason"].(string)
		notifier.SendBreaker(name, reason)
	})

	sniper := bot.New(cfg.BotConfig, bot.Deps{
		Broker:      bk,
		Detector:    patterns.NewDetector(cfg.PatternsConfig),
		Coordinator: coordinator.New(cfg.CoordinatorConfig, logger),
		RiskManager: riskMgr,
		Executor:    exec,
		ExitManager: exits.New(cfg.ExitsConfig, logger),
		Engine:      engine,
		Snapshots:   snapshots,
		Blacklist:   bl,
		Stream:      stream.NewMarketStream(cfg.StreamConfig, logger),
		Bus:         bus,
		Notifier:    notifier,
		Journal:     jrnl,
		Conn:        conn,
	}, logger)

	// Bridge breaker trips onto the bus.
	riskMgr.Breakers().OnTrip(func(name, reason string) {
		bus.PublishBreakerTripped(name, reason)
	})
	riskMgr.Breakers().OnClear(func(name string) {
		bus.PublishBreakerCleared(name)
	})

	if err := sniper.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bot start failed")
	}

	authService := auth.NewService(cfg.AuthConfig)
	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
	}, sniper, authService, logger)
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("control API start failed")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("control API shutdown failed")
	}
	sniper.Stop()
}
