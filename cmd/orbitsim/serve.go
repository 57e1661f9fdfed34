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
	"github.com/orbitsim/server/internal/persist"
	"github.com/orbitsim/server/internal/protocol"
	"github.com/orbitsim/server/internal/scripting"
	"github.com/orbitsim/server/internal/sim"
	"github.com/orbitsim/server/internal/system"
	"github.com/orbitsim/server/internal/world"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authoritative session server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if name, _ := cmd.Flags().GetString("system"); name != "" {
			cfg.World.System = name
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().String("system", "", "override world.system")
}

func simOptions(cfg *config.Config) (sim.Options, error) {
	policy, err := sim.ParsePolicy(cfg.Physics.ProjectilePolicy)
	if err != nil {
		return sim.Options{}, err
	}
	return sim.Options{
		G:                cfg.Physics.GravityConstant,
		DistanceScale:    cfg.Physics.DistanceScale,
		Substeps:         cfg.Physics.Substeps,
		ZeroGravity:      cfg.Physics.ZeroGravity,
		ProjectileSpeed:  cfg.Physics.ProjectileSpeed,
		ProjectileRadius: cfg.Physics.ProjectileRadius,
		ImpactImpulse:    cfg.Physics.ImpactImpulse,
		Policy:           policy,
		FrameDt:          cfg.Network.TickRate,
	}, nil
}

func sessionOptions(cfg *config.Config) gonet.SessionOptions {
	return gonet.SessionOptions{
		InQueueSize:      cfg.Network.InQueueSize,
		OutQueueSize:     cfg.Network.OutQueueSize,
		PacketsPerSecond: cfg.Network.PacketsPerSecond,
		PacketBurst:      cfg.Network.PacketBurst,
		WriteTimeout:     cfg.Network.WriteTimeout,
	}
}

func serve(cfg *config.Config) error {
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	fmt.Println()
	printSection("World")

	luaEngine, err := scripting.NewEngine(cfg.World.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer luaEngine.Close()
	printStat("Lua systems", len(luaEngine.Systems()))

	source := world.SystemSource{DataDir: cfg.World.DataDir, Lua: luaEngine}
	initData, err := source.Load(cfg.World.System, world.GenParams{Seed: cfg.World.Seed, G: cfg.Physics.GravityConstant})
	if err != nil {
		return fmt.Errorf("load system %q: %w", cfg.World.System, err)
	}

	opts, err := simOptions(cfg)
	if err != nil {
		return err
	}
	simulation := sim.New(opts, log)
	// Clients receive the masses in wire precision; integrate the same values.
	if err := simulation.Load(protocol.WirePrecision(initData)); err != nil {
		return fmt.Errorf("load system %q: %w", cfg.World.System, err)
	}
	lobby := world.NewLobby(simulation.Registry().Inhabitable())
	printStat("Masses", simulation.Registry().Len())
	printStat("Inhabitable", lobby.Free())
	if lobby.Free() == 0 {
		return fmt.Errorf("system %q has no inhabitable mass", cfg.World.System)
	}

	// Event log is optional.
	var (
		writer    system.EventWriter
		eventRepo *persist.EventRepo
		sessionID int64
	)
	if cfg.Database.Enabled {
		fmt.Println()
		printSection("Database")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		version, err := persist.RunMigrations(ctx, db.Pool, log)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("Migrations at version %d", version))

		eventRepo = persist.NewEventRepo(db)
		sessionID, err = eventRepo.StartSession(ctx, cfg.Server.Name, cfg.World.System, cfg.World.Seed)
		if err != nil {
			return fmt.Errorf("start session log: %w", err)
		}
		writer = eventRepo
	}

	pktReg := packet.NewRegistry(log)
	store := gonet.NewSessionStore()
	handler.RegisterAll(pktReg, &handler.Deps{
		Config:   cfg,
		Log:      log,
		Sim:      simulation,
		Lobby:    lobby,
		Sessions: store,
	})

	netServer, err := gonet.NewServer(cfg.Network.BindAddress, cfg.Network.WSBindAddress, sessionOptions(cfg), log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	running := func() bool { return lobby.State() == world.StateRunning }

	runner := coresys.NewRunner()
	persistSys := system.NewPersistenceSystem(simulation, writer, sessionID, int(time.Second/cfg.Network.TickRate), log)
	runner.Register(system.NewInputSystem(netServer.NewSessions(), pktReg, store, lobby, simulation, cfg.Network.MaxPacketsPerTick, log))
	runner.Register(system.NewGravitySystem(simulation, running))
	runner.Register(system.NewCollisionSystem(simulation, running, log))
	runner.Register(system.NewOutputSystem(store))
	runner.Register(persistSys)
	runner.Register(system.NewCleanupSystem(simulation, log))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	fmt.Println()
	printSection("Ready")
	printReady(fmt.Sprintf("Listening on %s", netServer.Addr()))
	if ws := netServer.WSAddr(); ws != nil {
		printReady(fmt.Sprintf("WebSocket on %s%s", ws, gonet.WSPath))
	}
	printReady(fmt.Sprintf("Game loop running (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	finish := func(reason string) {
		// One last pass so pending rejects and the journal go out.
		runner.TickPhase(coresys.PhaseOutput, cfg.Network.TickRate)
		persistSys.Update(0)
		persistSys.Flush()
		if eventRepo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := eventRepo.EndSession(ctx, sessionID, reason); err != nil {
				log.Warn("close session log", zap.Error(err))
			}
		}
		netServer.Shutdown()
		log.Info("server stopped", zap.String("reason", reason), zap.Uint64("ticks", simulation.Tick()))
	}

	for {
		select {
		case <-ticker.C:
			err := runner.Tick(cfg.Network.TickRate)
			if err == nil {
				continue
			}
			finish(err.Error())
			if errors.Is(err, world.ErrSessionEnded) {
				log.Info("session over", zap.Error(err))
				return nil
			}
			return err
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			finish("signal " + sig.String())
			return nil
		}
	}
}
