package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"dc2kook/internal/command"
	"dc2kook/internal/config"
	"dc2kook/internal/discord"
	"dc2kook/internal/kook"
	"dc2kook/internal/logger"
	"dc2kook/internal/media"
	"dc2kook/internal/mongo"
	"dc2kook/internal/relay"
	"dc2kook/internal/store"
	"dc2kook/internal/translate"
	"dc2kook/internal/worker"
)

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	Settings *config.Settings

	Store        store.Store
	MongoDB      *mongo.Client
	Kook         *kook.Client
	Media        *media.Relay
	Translations *translate.Manager
	Dispatcher   *relay.Dispatcher
	Pool         *worker.Pool
	Commands     *command.Handler
	Listener     *discord.Listener

	limiter *kook.RateLimiter
}

// OpenStore 打开配置存储：本地 JSON 文件，配置了 MONGO_URI 时叠加 MongoDB
// 返回的 Mongo 客户端可能为 nil
func OpenStore(ctx context.Context, cfg *config.Settings) (store.Store, *mongo.Client, error) {
	file, err := store.NewFileStore(cfg.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("init config store failed: %w", err)
	}
	if cfg.MongoURI == "" {
		return file, nil, nil
	}

	client, err := mongo.Connect(ctx, mongo.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDBName,
		Timeout:  cfg.HTTPTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init MongoDB failed: %w", err)
	}

	external := store.NewMongoStore(client.Database(), cfg.MongoCollection)
	if err := external.EnsureIndexes(ctx); err != nil {
		_ = client.Close(context.Background())
		return nil, nil, fmt.Errorf("ensure options indexes failed: %w", err)
	}
	logger.L().Infof("MongoDB options store enabled: db=%s, collection=%s", cfg.MongoDBName, cfg.MongoCollection)

	return store.NewLayered(file, external), client, nil
}

// New 初始化应用及其所有服务
// 按顺序初始化各个服务，任何服务初始化失败都会返回错误
func New(ctx context.Context, cfg *config.Settings) (*App, error) {
	if err := cfg.ValidateForRun(); err != nil {
		return nil, err
	}

	app := &App{Settings: cfg}

	var err error
	app.Store, app.MongoDB, err = OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	app.limiter = kook.NewRateLimiter(cfg.KookRatePerSecond)
	app.Kook, err = kook.NewClient(cfg.KookToken,
		kook.WithBaseURL(cfg.KookAPIBase),
		kook.WithHTTPClient(httpClient),
		kook.WithRateLimiter(app.limiter),
	)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init Kook client failed: %w", err)
	}

	app.Media, err = media.NewRelay(cfg.MediaDir, app.Kook, media.WithDownloadTimeout(cfg.DownloadTimeout))
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init media relay failed: %w", err)
	}

	app.Translations = translate.NewManager(translate.WithHTTPClient(httpClient))
	app.Dispatcher = relay.NewDispatcher(app.Store, app.Kook, app.Media, app.Translations)
	app.Pool = worker.NewPool(cfg.Workers, cfg.QueueSize)

	probe := &platformProbe{kook: app.Kook}
	app.Commands = command.NewHandler(cfg.CommandName, app.Store, probe, app.Media)

	app.Listener, err = discord.NewListener(cfg.DiscordToken, app.Dispatcher, app.Commands, app.Pool)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init Discord listener failed: %w", err)
	}
	probe.listener = app.Listener

	return app, nil
}

// Run 连接 Discord 网关并阻塞直到 ctx 结束
func (a *App) Run(ctx context.Context) error {
	if opts, err := config.Snapshot(ctx, a.Store); err != nil {
		logger.L().Warnf("Failed to read forwarding options at startup: %v", err)
	} else {
		logger.L().Infof("Forwarding options: enabled=%v, forward_all=%v, mappings=%d, default=%q -> %q",
			opts.Enabled, opts.ForwardAllChannels, len(opts.ForwardChannels),
			opts.DefaultSourceChannel, opts.DefaultDestinationChannel)
	}

	if err := a.Listener.Start(ctx); err != nil {
		return err
	}
	logger.L().Info("Discord -> Kook relay is running")

	<-ctx.Done()
	logger.L().Info("Shutdown signal received, stopping relay")
	return nil
}

// Close 优雅关闭所有服务
// 先断开网关停止接收新消息，再等待队列中的任务完成
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.Listener != nil {
		if err := a.Listener.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Discord listener failed: %w", err))
		}
	}
	if a.Pool != nil {
		a.Pool.Shutdown()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close MongoDB failed: %w", err))
		}
	}

	return errors.Join(errs...)
}

// platformProbe 通过 Kook user/me 与 Discord Ready 事件确认两端 Bot 身份
type platformProbe struct {
	kook     *kook.Client
	listener *discord.Listener
}

func (p *platformProbe) Refresh(ctx context.Context) (command.Binding, error) {
	me, err := p.kook.Me(ctx)
	if err != nil {
		return command.Binding{}, err
	}

	binding := command.Binding{KookID: me.ID}
	if p.listener != nil {
		binding.DiscordID = p.listener.SelfID()
	}
	return binding, nil
}
