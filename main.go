package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pattarin-dev/voicebook/agent/events"
	"github.com/pattarin-dev/voicebook/agent/scheduling"
	"github.com/pattarin-dev/voicebook/agent/session"
	"github.com/pattarin-dev/voicebook/agent/summary"
	"github.com/pattarin-dev/voicebook/agent/tool"
	configx "github.com/pattarin-dev/voicebook/pkg/config"
	livekitx "github.com/pattarin-dev/voicebook/pkg/livekit"
	_ "github.com/pattarin-dev/voicebook/pkg/logger/autoload"
	openrouterx "github.com/pattarin-dev/voicebook/pkg/openrouter"
	"github.com/pattarin-dev/voicebook/server"
)

type AppConfig struct {
	SessionIdleAfter time.Duration `envconfig:"SESSION_IDLE_AFTER" default:"10m"`
	ReapInterval     time.Duration `envconfig:"REAP_INTERVAL" default:"1m"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	pgCfg := configx.MustNew[scheduling.PostgresConfig]("POSTGRES")
	var store scheduling.Store
	if strings.TrimSpace(pgCfg.DSN) != "" {
		pg, err := scheduling.NewPostgresStore(*pgCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("connect postgres")
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("run migrations")
		}
		store = pg
	} else {
		log.Warn().Msg("no POSTGRES_DSN, appointments are in-memory and not durable")
		store = scheduling.NewMemoryStore()
	}

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	var narrator summary.Narrator
	if client := openrouterx.NewClient(*openRouterCfg); client != nil {
		narrator = summary.NewLLMNarrator(client, openRouterCfg.Model, openRouterCfg.Timeout)
	} else {
		log.Warn().Msg("no OPENROUTER_API_KEY, summaries are structural only")
	}

	registry := session.NewRegistry()
	broadcaster := events.NewBroadcaster()
	generator := summary.NewGenerator(store, narrator)
	dispatcher := tool.NewDispatcher(registry, store, broadcaster, generator)

	registry.StartReaper(ctx, appCfg.ReapInterval, appCfg.SessionIdleAfter, func(snap session.Snapshot) {
		dispatcher.FinalizeExpired(ctx, snap)
	})

	lkCfg := configx.MustNew[livekitx.Config]("LIVEKIT")
	var minter *livekitx.TokenMinter
	if strings.TrimSpace(lkCfg.APIKey) != "" {
		var err error
		minter, err = livekitx.NewTokenMinter(*lkCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("livekit token minter")
		}
	} else {
		log.Warn().Msg("no LIVEKIT_API_KEY, media token route disabled")
	}

	srvCfg := configx.MustNew[server.Config]("SERVER")
	srv := server.New(*srvCfg, registry, dispatcher, broadcaster, minter)
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("shutdown complete")
}
