package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/seika-app/pomosync/config"
	"github.com/seika-app/pomosync/src/realtime"
	"github.com/seika-app/pomosync/src/service"
	"github.com/seika-app/pomosync/src/session"
	"github.com/seika-app/pomosync/src/statusapi"
	"github.com/seika-app/pomosync/src/store"
	"github.com/seika-app/pomosync/src/transport"
	"github.com/seika-app/pomosync/src/types"
	"github.com/spf13/cobra"
)

func buildRunCmd(opts *rootOptions) *cobra.Command {
	var (
		room string
		mode string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect, start a session and share it with a room",
		Long: `Connect to the session server with the stored credential, start a timer
in the chosen mode and broadcast it to the room. Peer timers are logged as
they arrive. Shuts down cleanly on SIGINT/SIGTERM.`,
		Example: `  pomosync run --room study
  pomosync run --mode free --log-format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logFormat, opts.logLevel)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if room != "" {
				cfg.RoomID = room
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			m, err := session.ParseMode(mode)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, m, logger)
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "Room to join (overrides room_id)")
	cmd.Flags().StringVar(&mode, "mode", string(session.ModePomodoro), "Session mode: pomodoro, shortBreak, longBreak or free")
	return cmd
}

func run(ctx context.Context, cfg *config.ClientConfig, mode session.Mode, logger zerolog.Logger) error {
	st, err := store.Open(cfg.StoreOptions())
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.UserID == "" {
		cfg.UserID = anonymousUserID(ctx, st, logger)
	}
	if cfg.UserName == "" {
		cfg.UserName = cfg.UserID
	}
	logger = logger.With().Str("user_id", cfg.UserID).Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	opts := cfg.RealtimeOptions()
	opts.Metrics = realtime.NewMetrics(reg)
	mgr := realtime.New(
		opts,
		transport.NewDialer(cfg.TransportConfig(), logger),
		store.Credentials{Store: st, Key: cfg.CredentialKey},
		logger,
	)
	mgr.OnStatusChange(func(from, to types.Status) {
		logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("connection status")
	})

	ticks := make(chan struct{}, 1)
	sess, err := session.New(session.Config{
		Store: st,
		OnTick: func(types.TimerData) {
			select {
			case ticks <- struct{}{}:
			default:
			}
		},
		OnComplete: func(m session.Mode) {
			logger.Info().Str("mode", string(m)).Msg("run complete")
		},
	}, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	syncCfg := cfg.SyncConfig()
	syncCfg.OnPeerUpdate = func(p types.PeerSnapshot) {
		logger.Info().
			Str("peer", p.DisplayName).
			Str("mode", p.TimerData.Mode).
			Int("current_time", p.TimerData.CurrentTime).
			Msg("peer timer")
	}
	coord := service.NewTimerSync(mgr, sess, syncCfg, logger)
	coord.Start()
	defer coord.Stop()

	var api *statusapi.Server
	if cfg.StatusAddr != "" {
		api = statusapi.New(mgr, coord, sess, reg, logger)
		go func() {
			if err := api.Listen(cfg.StatusAddr); err != nil {
				logger.Error().Err(err).Msg("status api stopped")
			}
		}()
	}

	mgr.Connect()
	if cfg.RoomID != "" {
		coord.JoinRoom(cfg.RoomID)
	}
	sess.SetMode(mode)
	sess.Start()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			mgr.Disconnect()
			if api != nil {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := api.Shutdown(sctx); err != nil {
					logger.Warn().Err(err).Msg("status api shutdown")
				}
			}
			return nil
		case <-ticks:
			coord.Tick()
		}
	}
}

// anonymousUserID returns the persisted anonymous id, creating one on
// first run.
func anonymousUserID(ctx context.Context, st store.Store, logger zerolog.Logger) string {
	id, err := st.Get(ctx, store.KeyUserID)
	if err == nil && id != "" {
		return id
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn().Err(err).Msg("read user id")
	}
	id = uuid.New().String()
	if err := st.Set(ctx, store.KeyUserID, id); err != nil {
		logger.Warn().Err(err).Msg("persist user id")
	}
	return id
}
