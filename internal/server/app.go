package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guneet-Singh-Kalra/orbital/internal/auth"
	"github.com/Guneet-Singh-Kalra/orbital/internal/cooldown"
	"github.com/Guneet-Singh-Kalra/orbital/internal/game"
	"github.com/Guneet-Singh-Kalra/orbital/internal/notify"
	"github.com/Guneet-Singh-Kalra/orbital/internal/presence"
	"github.com/Guneet-Singh-Kalra/orbital/internal/profile"
	"github.com/Guneet-Singh-Kalra/orbital/internal/store"
	"github.com/Guneet-Singh-Kalra/orbital/internal/strike"
	"github.com/Guneet-Singh-Kalra/orbital/internal/wake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// App is one combat-core process: HTTP surface, wake delivery, resolution
// sweep and notification workers over a shared Redis.
type App struct {
	cfg        AppConfig
	log        *zap.Logger
	handler    http.Handler
	push       *PushHub
	dispatcher *notify.Dispatcher
	channel    *wake.Channel
	engine     *game.Engine
}

// NewApp wires every component onto client. The caller owns client.
func NewApp(client redis.UniversalClient, cfg AppConfig, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}

	profiles := profile.NewMemoryStore()
	verifier := auth.NewStaticVerifier(nil)
	for _, p := range cfg.Players {
		verifier.Add(p.Token, p.ID)
		username := p.Username
		if username == "" {
			username = p.ID
		}
		profiles.Put(profile.Profile{
			PlayerID:          p.ID,
			Username:          username,
			Alive:             true,
			LastKnownLocation: p.LastKnownLocation,
		})
	}

	// Offline players would be reached by the external push service; until
	// one is configured their notifications are only logged.
	push := NewPushHub(notify.LogGateway{Log: log.Named("offline")}, log.Named("push"))
	dispatcher := notify.NewDispatcher(push, cfg.NotifyWorkers, cfg.NotifyQueue, log.Named("notify"))
	channel := wake.NewChannel(client, cfg.Wake, log.Named("wake"))

	deps := game.Deps{
		Presence:  presence.NewIndex(client),
		Cooldowns: cooldown.NewLedger(client),
		Profiles:  profiles,
		Strikes:   strike.NewStore(client, cfg.StrikeGrace),
		Wake:      channel,
		Notifier:  dispatcher,
		Log:       log,
	}
	tuning := game.SanitizeTuning(cfg.Tuning)
	engine := game.NewEngine(deps, game.EliminationRule{Points: tuning.EliminationPoints}, cfg.Resolver)
	channel.Subscribe(engine.Resolve)

	h := &handlers{
		scanner:     game.NewScanner(deps, tuning),
		coordinator: game.NewCoordinator(deps, tuning),
		verifier:    verifier,
		push:        push,
		log:         log.Named("http"),
	}
	return &App{
		cfg:        cfg,
		log:        log,
		handler:    newMux(h),
		push:       push,
		dispatcher: dispatcher,
		channel:    channel,
		engine:     engine,
	}
}

func (a *App) Handler() http.Handler { return a.handler }

// Run listens on cfg.Addr and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.channel.Run(gctx) })
	g.Go(func() error { return a.engine.Run(gctx) })
	g.Go(func() error { return a.dispatcher.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		a.push.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// StartApp resolves configuration, connects to Redis and runs until SIGINT or
// SIGTERM.
func StartApp(cfg AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolved, err := ResolveConfig(cfg)
	if err != nil {
		return err
	}
	client, err := store.Open(ctx, resolved.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	t := resolved.Tuning
	log.Info("starting combat core",
		zap.String("addr", resolved.Addr),
		zap.String("redis", resolved.Redis.Addr),
		zap.Float64("scan_radius_m", t.ScanRadiusM),
		zap.Duration("scan_cooldown", t.ScanCooldown),
		zap.Duration("weapon_cooldown", t.WeaponCooldown),
		zap.Float64("strike_radius_m", t.StrikeRadiusM),
		zap.Duration("charge", t.ChargeDuration),
		zap.Int("dev_players", len(resolved.Players)))

	err = NewApp(client, resolved, log).Run(ctx)
	log.Info("stopped")
	return err
}
