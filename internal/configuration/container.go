package configuration

import (
	"NiralaChat/internal/chat"
	"NiralaChat/internal/db"
	"NiralaChat/internal/handler"
	"NiralaChat/internal/hub"
	"NiralaChat/internal/identity"
	"NiralaChat/internal/model"
	"NiralaChat/internal/notify"
	"NiralaChat/internal/popup"
	"NiralaChat/internal/remote"
	"NiralaChat/internal/repo"
	"NiralaChat/internal/session"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const startupTimeout = 30 * time.Second

type Container struct {
	ChatHandler    handler.ChatHandler
	MonitorHandler handler.MonitorHandler
	Hub            *hub.Hub
	Chat           *chat.Orchestrator
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient    *mongo.Database
	layoutRecorder *chat.LayoutRecorder
	unsubscribe    func()
}

func BuildContainer() (*Container, error) {
	config, err := LoadConfig(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	c := &Container{
		Config: *config,
		Logger: logger,
	}
	if err := c.wire(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func newLogger(cfg LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func (c *Container) wire() error {
	cfg := &c.Config
	tokens := identity.FileTokenSource{Path: cfg.Identity.TokenFile}

	remoteClient, err := remote.NewClient(cfg.Remote.BaseURL,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.RemoteTimeout()}),
		remote.WithTokenSource(tokens),
		remote.WithLogger(c.Logger),
		remote.WithCorrelationIDs(uuid.NewString),
	)
	if err != nil {
		return err
	}

	initialInterval, maxInterval := cfg.ReconnectIntervals()
	c.Hub = hub.NewHub(hub.Config{
		SocketURL:       cfg.Remote.SocketURL,
		MaxRetries:      *cfg.Reconnect.MaxRetries,
		InitialInterval: initialInterval,
		MaxInterval:     maxInterval,
	}, tokens, c.Logger)

	gate := notify.NewGate(
		notify.AutoPrompter{Accept: cfg.Chat.DesktopNotifications},
		&notify.LogNotifier{Grant: cfg.Chat.DesktopNotifications, Logger: c.Logger.Named("desktop")},
		notify.TerminalBell{W: os.Stdout},
		c.Logger,
	)

	store := session.NewStore()
	c.Chat = chat.New(chat.Deps{
		Store:     store,
		Transport: c.Hub,
		Remote:    remoteClient,
		Gate:      gate,
		Tokens:    tokens,
		Logger:    c.Logger,
	}, chat.Config{
		DesktopMaxSessions:   cfg.Chat.DesktopMaxSessions,
		MobileBreakpointPx:   cfg.Chat.MobileBreakpointPx,
		TypingQuietPeriod:    cfg.TypingQuietPeriod(),
		InitialViewportWidth: cfg.Chat.InitialViewportWidth,
	})

	popups := popup.NewManager(c.Chat, c.Chat.Policy(), cfg.Chat.SwipeCloseThresholdPx)
	c.ChatHandler = handler.NewChatHandler(c.Chat, popups, c.Logger)
	c.MonitorHandler = handler.NewMonitorHandler(hub.NewMonitorService(c.Hub, c.Chat))

	if cfg.Mongo.Uri == "" {
		c.Logger.Info("mongo uri not set, chat layouts will not be persisted")
		return nil
	}
	return c.wireLayouts(store, tokens)
}

// wireLayouts restores the saved popups and keeps the snapshot current.
func (c *Container) wireLayouts(store *session.Store, tokens identity.TokenSource) error {
	cfg := &c.Config
	con, err := db.OpenConnection(cfg.Mongo.Uri, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	c.mongoClient = con

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	mongoRepo := db.NewRepository[model.Layout](con, cfg.Mongo.LayoutCollection)
	if _, err := mongoRepo.EnsureIndex(ctx, "user_id", true); err != nil {
		return fmt.Errorf("failed to create layout index: %w", err)
	}
	layouts := repo.NewLayoutRepository(mongoRepo, c.Logger)

	if pruned, err := layouts.PruneLayouts(ctx, cfg.LayoutCutoff(time.Now())); err != nil {
		c.Logger.Warn("failed to prune stale layouts", zap.Error(err))
	} else if pruned > 0 {
		c.Logger.Info("pruned stale layouts", zap.Int64("count", pruned))
	}

	c.layoutRecorder = chat.NewLayoutRecorder(layouts, tokens, c.Logger)
	c.Chat.OnSignOut(c.layoutRecorder.Forget)

	saved, err := c.layoutRecorder.Load(ctx)
	if err != nil {
		c.Logger.Warn("failed to load saved layout", zap.Error(err))
	} else if saved != nil {
		if err := c.Chat.Restore(ctx, *saved); err != nil {
			c.Logger.Warn("some chat windows could not be restored", zap.Error(err))
		}
		c.Logger.Info("restored chat layout", zap.Int("sessions", len(saved.Sessions)))
	}

	// Subscribe after restoring so the restore itself is not written back
	// window by window.
	c.unsubscribe = store.Subscribe(c.layoutRecorder.Observe)
	c.layoutRecorder.Observe(store.Snapshot())
	return nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}

	// Stop the orchestrator first so no new bindings are made
	if c.Chat != nil {
		c.Chat.Close()
	}

	// Stop the hub (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.layoutRecorder != nil {
		c.layoutRecorder.Close()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
