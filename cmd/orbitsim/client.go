package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbitsim/server/internal/config"
	coresys "github.com/orbitsim/server/internal/core/system"
	"github.com/orbitsim/server/internal/handler"
	gonet "github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/sim"
	"github.com/orbitsim/server/internal/system"
	"github.com/orbitsim/server/internal/world"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Join a session and mirror its simulation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if v, _ := flags.GetString("nick"); v != "" {
			cfg.Client.Nickname = v
		}
		if v, _ := flags.GetString("server"); v != "" {
			cfg.Client.ServerAddress = v
		}
		if v, _ := flags.GetString("transport"); v != "" {
			cfg.Client.Transport = v
		}
		return runClient(cfg)
	},
}

func init() {
	clientCmd.Flags().String("nick", "", "nickname, up to 8 ASCII characters")
	clientCmd.Flags().String("server", "", "server address (host:port)")
	clientCmd.Flags().String("transport", "", "tcp or ws")
}

func runClient(cfg *config.Config) error {
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	clientID, err := protocol.FromNick(cfg.Client.Nickname)
	if err != nil {
		return err
	}
	if clientID == 0 {
		return fmt.Errorf("nickname must not be empty")
	}
	log = log.With(zap.String("nick", protocol.ToNick(clientID)))

	opts, err := simOptions(cfg)
	if err != nil {
		return err
	}
	simulation := sim.New(opts, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	server, err := gonet.Dial(ctx, cfg.Client.Transport, cfg.Client.ServerAddress, sessionOptions(cfg), log)
	cancel()
	if err != nil {
		return err
	}
	defer server.Close()

	mirror := handler.NewMirror(clientID)
	pktReg := packet.NewRegistry(log)
	handler.RegisterClient(pktReg, &handler.ClientDeps{Log: log, Sim: simulation, Mirror: mirror, Server: server})
	handler.SendHello(server, cfg.Network.ProtocolVersion, clientID, log)

	running := func() bool { return mirror.State == world.StateRunning && mirror.Configured }

	runner := coresys.NewRunner()
	runner.Register(system.NewClientInputSystem(server, pktReg, mirror, log))
	runner.Register(system.NewClientIntentSystem(server, simulation, mirror, cfg.Client.SpinRate, cfg.Client.FireInterval, nil, log))
	runner.Register(system.NewGravitySystem(simulation, running))
	runner.Register(system.NewCollisionSystem(simulation, running, log))
	runner.Register(system.NewClientOutputSystem(server))
	runner.Register(system.NewPersistenceSystem(simulation, nil, 0, 1, log))
	runner.Register(system.NewCleanupSystem(simulation, log))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	tickRate := cfg.Network.TickRate
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()
	report := time.NewTicker(cfg.Client.ReportEvery)
	defer report.Stop()

	log.Info("connected", zap.String("server", server.RemoteAddr), zap.String("transport", cfg.Client.Transport))

	for {
		select {
		case <-ticker.C:
			err := runner.Tick(tickRate)
			if err == nil {
				// Follow the server's tick once its config arrives.
				if dt := simulation.FrameDt(); dt > 0 && dt != tickRate {
					tickRate = dt
					ticker.Reset(tickRate)
					log.Info("tick rate from server", zap.Duration("tick", tickRate))
				}
				continue
			}
			if errors.Is(err, system.ErrServerGone) && mirror.State != world.StateStopped {
				log.Info("session over", zap.Error(err))
				return nil
			}
			return err
		case <-report.C:
			log.Info("status",
				zap.Stringer("state", mirror.State),
				zap.Uint64("mass", uint64(mirror.MassID)),
				zap.Int("clients", len(mirror.Clients)),
				zap.Int("masses", simulation.Registry().Len()),
				zap.Int("projectiles", simulation.Tracker().Len()),
				zap.Uint64("tick", simulation.Tick()),
			)
		case sig := <-shutdownCh:
			log.Info("leaving", zap.String("signal", sig.String()))
			server.CloseAfterFlush(nil)
			server.FlushOutput()
			select {
			case <-server.Done():
			case <-time.After(time.Second):
			}
			return nil
		}
	}
}
