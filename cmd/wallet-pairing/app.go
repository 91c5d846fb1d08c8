package main

import (
	"context"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/wallet-pairing/internal/aws"
	"moff.io/wallet-pairing/internal/cache"
	"moff.io/wallet-pairing/internal/config"
	"moff.io/wallet-pairing/internal/database"
	"moff.io/wallet-pairing/internal/databus"
	"moff.io/wallet-pairing/internal/presenter"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/internal/walletconnect"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

// app holds the wired components of one run.
type app struct {
	cfg     *config.Configuration
	manager *session.Manager
	qr      *presenter.PNGFile
	limiter *redis_rate.Limiter
	events  *database.EventLog
	closers []func()
}

// newApp loads the configuration and wires every configured component.
// terminal, when set, also renders pairing codes as text.
func newApp(ctx context.Context, terminal io.Writer) (*app, error) {
	cfg, err := config.Read(configPath, envFiles...)
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" {
		log.SetLevelName(cfg.LogLevel)
	}
	if err := errors.Setup(errors.ReportConfig{
		SentryDSN:       cfg.Report.SentryDSN,
		LarkWebhook:     cfg.Report.LarkWebhook,
		DingTalkWebhook: cfg.Report.DingTalkWebhook,
		DingTalkSecret:  cfg.Report.DingTalkSecret,
	}); err != nil {
		log.Warnf("error reporting disabled: %v", err)
	}

	a := &app{cfg: cfg, qr: presenter.NewPNGFile(cfg.QRFile, 0)}
	presenters := presenter.Multi{a.qr}
	if terminal != nil {
		presenters = append(presenters, presenter.NewTerminal(terminal))
	}
	caches := cache.Multi{cache.NewDir(cfg.CacheDir)}
	var notifiers session.Notifiers

	var params config.ParameterStore
	if cfg.Aws.Region != "" {
		clients, err := aws.Init(ctx, cfg.Aws.Bucket, cfg.Aws.Region)
		if err != nil {
			return nil, err
		}
		params = clients
		if cfg.Aws.Bucket != "" {
			presenters = append(presenters, presenter.NewS3(clients, cfg.Aws.QRKey))
		}
		if cfg.Aws.NotificationQueueURL != "" {
			notifiers = append(notifiers, clients.NewQueueNotifier(cfg.Aws.NotificationQueueURL))
		}
	}
	if err := cfg.ResolveProjectID(ctx, params); err != nil {
		return nil, err
	}
	if cfg.WalletConnect.ProjectID == "" {
		log.Warn("wallet connect project id is empty")
	}

	if cfg.Redis.Address != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Address, cfg.Redis.Database)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { closeRedis(client) })
		caches = append(caches, cache.NewRedis(client))
		a.limiter = redis_rate.NewLimiter(client)
	}
	if cfg.Postgres.Enabled() {
		db, err := database.Connect(&cfg.Postgres)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { database.Close(db) })
		a.events = database.NewEventLog(db)
		notifiers = append(notifiers, a.events)
	}
	if cfg.KafkaServer != "" {
		bus, err := databus.NewDataBus(cfg.KafkaServer, cfg.KafkaTopic)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := bus.Close(); err != nil {
				log.Warn(err)
			}
		})
		notifiers = append(notifiers, bus)
	}

	bridge := walletconnect.NewBridge(
		walletconnect.WithBridgeURL(cfg.WalletConnect.BridgeURL),
		walletconnect.WithPeerMeta("Wallet Pairing", "WalletConnect pairing sample", "https://walletconnect.com"),
	)
	a.manager = session.NewManager(bridge, presenters,
		session.WithProjectID(cfg.WalletConnect.ProjectID),
		session.WithNamespace(cfg.WalletConnect.Namespace),
		session.WithChainID(cfg.WalletConnect.ChainID),
		session.WithKeepClientOnReset(cfg.WalletConnect.KeepClientOnReset),
		session.WithCache(caches),
		session.WithNotifier(notifiers),
	)
	return a, nil
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		log.Warnf("close redis: %v", err)
	}
}

// close releases the session and every connection, newest first.
func (a *app) close() {
	if a.manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.manager.Close(ctx); err != nil {
			log.Warnf("close session manager: %v", err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
