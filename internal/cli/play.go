package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cory-johannsen/mudclient/internal/api"
	"github.com/cory-johannsen/mudclient/internal/archive"
	"github.com/cory-johannsen/mudclient/internal/config"
	"github.com/cory-johannsen/mudclient/internal/coordinator"
	"github.com/cory-johannsen/mudclient/internal/frontend/render"
	"github.com/cory-johannsen/mudclient/internal/ledger"
	"github.com/cory-johannsen/mudclient/internal/npc"
	"github.com/cory-johannsen/mudclient/internal/observability"
	"github.com/cory-johannsen/mudclient/internal/push"
	"github.com/cory-johannsen/mudclient/internal/server"
)

const archiveHealthInterval = 30 * time.Second

// NewPlayCmd creates the play command, which runs an interactive session.
func NewPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join the game as the configured player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			noColor, _ := cmd.Flags().GetBool("no-color")
			return play(cmd.Context(), cfg, !noColor)
		},
	}
	cmd.Flags().Bool("no-color", false, "disable ANSI colours")
	return cmd
}

func play(ctx context.Context, cfg config.Config, color bool) error {
	start := time.Now()
	baseLogger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = baseLogger.Sync() }()
	logger := observability.SessionLogger(baseLogger, cfg.Session.PlayerID, cfg.Session.RoomID)

	var dir *npc.Directory
	if cfg.Session.NPCFile != "" {
		dir, err = npc.LoadDirectory(cfg.Session.NPCFile)
		if err != nil {
			return err
		}
		logger.Info("npc directory loaded", zap.String("file", cfg.Session.NPCFile), zap.Int("npcs", dir.Len()))
	}

	channel, err := openPush(ctx, cfg, logger.Named("push"))
	if err != nil {
		return err
	}

	lifecycle := server.NewLifecycle(logger.Named("lifecycle"))

	deps := coordinator.Deps{
		Backend:   api.NewClient(cfg.API, nil, logger.Named("api")),
		Push:      channel,
		Directory: dir,
		Feed:      ledger.NewFeed(256),
		Logger:    logger.Named("coordinator"),
	}
	if cfg.Archive.Enabled {
		pool, err := archive.NewPool(ctx, cfg.Archive.Database)
		if err != nil {
			_ = channel.Close()
			return err
		}
		defer pool.Close()
		deps.Archive = pool.Transcripts()
		lifecycle.Add("archive", &server.FuncService{RunFn: func(ctx context.Context) error {
			return watchArchive(ctx, pool, logger)
		}})
		logger.Info("transcript archive connected", zap.String("host", cfg.Archive.Database.Host))
	}

	coord := coordinator.New(cfg.Session, deps)
	renderer := render.NewRenderer(color, cfg.Session.PlayerID, func(id string) string {
		if rec, ok := coord.Directory().Get(id); ok {
			return rec.Name
		}
		return ""
	})
	console := render.NewConsole(os.Stdout, renderer)
	input := NewInput(os.Stdin, coord, console, renderer)

	lifecycle.Add("coordinator", &server.FuncService{RunFn: coord.Run})
	lifecycle.Add("console", &server.FuncService{RunFn: func(ctx context.Context) error {
		// Drain until the coordinator closes the feed so the last entries print.
		return console.Run(context.WithoutCancel(ctx), deps.Feed.Changes())
	}})
	lifecycle.Add("input", &server.FuncService{RunFn: input.Run})

	logger.Info("session initialized",
		zap.String("transport", cfg.Push.Transport),
		zap.String("api", cfg.API.BaseURL),
		zap.Duration("startup", time.Since(start)),
	)
	_ = console.Println(renderer.Status(coord.Player(), coord.Duel()) + " (type :help for commands)")
	return lifecycle.Run(ctx)
}

func openPush(ctx context.Context, cfg config.Config, logger *zap.Logger) (push.Channel, error) {
	if cfg.Push.Transport == config.TransportRedis {
		r, err := push.DialRedis(ctx, cfg.Push.RedisAddr, cfg.Push.ChannelPrefix, cfg.Session.PlayerID, cfg.Push.OutboundBuffer, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	ws, err := push.DialWebSocket(ctx, cfg.Push.URL, cfg.Session.PlayerID, cfg.Push.OutboundBuffer, logger)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func watchArchive(ctx context.Context, pool *archive.Pool, logger *zap.Logger) error {
	ticker := time.NewTicker(archiveHealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := pool.Health(ctx, 5*time.Second); err != nil {
				logger.Warn("archive health check failed", zap.Error(err))
			}
		}
	}
}
