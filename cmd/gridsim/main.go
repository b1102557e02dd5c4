package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/gridsim/internal/config"
	"github.com/l1jgo/gridsim/internal/core/ecs"
	"github.com/l1jgo/gridsim/internal/core/event"
	coresys "github.com/l1jgo/gridsim/internal/core/system"
	"github.com/l1jgo/gridsim/internal/data"
	"github.com/l1jgo/gridsim/internal/grid"
	"github.com/l1jgo/gridsim/internal/observer"
	"github.com/l1jgo/gridsim/internal/persist"
	"github.com/l1jgo/gridsim/internal/scripting"
	"github.com/l1jgo/gridsim/internal/system"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

var numbers = message.NewPrinter(language.English)

func printBanner(name string, mode grid.Mode) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              gridsim  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m       uniform spatial hash simulator      \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mrun:\033[0m %s \033[90m(mode: %s)\033[0m\n\n", name, mode)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := numbers.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Simulation ─────────────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/gridsim.toml"
	if p := os.Getenv("GRIDSIM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Sim.Name, cfg.Grid.Mode)

	// 3. Grid
	printSection("grid")
	var opts []grid.Option
	if cfg.Grid.StrictInsert {
		opts = append(opts, grid.WithStrictInsert())
	}
	g, err := grid.New(cfg.Grid.Extent, cfg.Grid.CellSize, opts...)
	if err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	printStat("columns", g.Columns())
	printStat("rows", g.Rows())
	printStat("cells", g.TotalCells())
	if g.Strict() {
		printOK("strict insert, duplicate ids rejected")
	}
	fmt.Println()

	// 4. Scenario
	printSection("scenario")
	scenario, err := data.LoadScenario(cfg.Sim.Scenario)
	if err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	for _, sg := range scenario.Groups {
		printStat(sg.Name, sg.Count)
	}
	printStat("population", scenario.Population())
	fmt.Println()

	// 5. Lua motion scripts
	var lua *scripting.Engine
	if cfg.Scripting.Dir != "" {
		printSection("scripting")
		lua, err = scripting.NewEngine(cfg.Scripting.Dir, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer lua.Close()
		printStat("lua scripts", lua.Scripts())
		if lua.HasMotion() {
			printOK("step_motion bound")
		}
		fmt.Println()
	}

	// 6. Recorder
	runID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := persist.Open(ctx, cfg.Recorder, log)
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	var frameLog *persist.FrameLog
	if store != nil || cfg.Recorder.FrameLogDir != "" {
		printSection("recorder")
	}
	if store != nil {
		defer store.Close()
		printOK(cfg.Recorder.Driver + " tick stats ready")
	}
	if cfg.Recorder.FrameLogDir != "" {
		frameLog = persist.NewFrameLog(cfg.Recorder.FrameLogDir, cfg.Sim.Name)
		defer frameLog.Close()
		printOK("frame log: " + cfg.Recorder.FrameLogDir)
	}
	if store != nil || frameLog != nil {
		fmt.Println()
	}

	// 7. ECS world and systems
	world := ecs.NewWorld()
	stores := system.NewStores(world)
	bus := event.NewBus()

	var tracker *grid.Tracker
	if cfg.Grid.Mode == grid.ModeIncremental {
		tracker = grid.NewTracker(g, log)
		world.Registry().Register(tracker)
	}

	crossings := &system.CrossingStats{}
	crossings.Subscribe(bus, log)

	spawn := system.NewSpawnSystem(world, stores, scenario, g.Extent(), tracker, cfg.Sim.Seed, log)
	motion := system.NewMotionSystem(world, stores, scenario, g.Extent(), lua, log)
	motion.UseGrid(g)
	spatial := system.NewSpatialSystem(g, cfg.Grid.Mode, tracker, stores, bus, log)
	occupancy := system.NewOccupancySystem(g, spatial, cfg.Sim.ReportInterval, log)
	persistence := system.NewPersistenceSystem(store, frameLog, runID, log, cfg.Recorder.FlushInterval, cfg.Recorder.FlushTimeout)
	cleanup := system.NewCleanupSystem(world, log)
	occupancy.AddSink(persistence.Record)

	runner := coresys.NewRunner()
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(spawn)
	runner.Register(motion)
	runner.Register(spatial)
	runner.Register(occupancy)
	runner.Register(persistence)
	runner.Register(cleanup)

	// 8. Observer
	var obs *observer.Server
	if cfg.Observer.Enabled {
		hub := observer.NewHub(log)
		occupancy.AddSink(hub.Publish)
		obs = observer.NewServer(hub, observer.Bootstrap{
			Name:       cfg.Sim.Name,
			Mode:       cfg.Grid.Mode.String(),
			Extent:     g.Extent(),
			CellSize:   g.CellSize(),
			Columns:    g.Columns(),
			Rows:       g.Rows(),
			TickRateMS: cfg.Sim.TickRate.Milliseconds(),
		}, log)
		if err := obs.Start(cfg.Observer.BindAddress); err != nil {
			return fmt.Errorf("observer: %w", err)
		}
	}

	// 9. Main loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Sim.TickRate)
	defer ticker.Stop()

	printSection("ready")
	// place the initial population before the first full tick
	runner.TickPhase(coresys.PhasePreUpdate, 0)
	printStat("spawned", world.Pool().Live())
	if obs != nil {
		printReady("observer: http://" + obs.Addr().String() + "/bootstrap")
	}
	printReady(fmt.Sprintf("tick %s, run %s", cfg.Sim.TickRate, runID))
	fmt.Println()

	log.Info("simulation started",
		zap.String("run", runID),
		zap.Stringer("mode", cfg.Grid.Mode),
		zap.Int("columns", g.Columns()),
		zap.Int("population", scenario.Population()))

	var stopReason string
	for stopReason == "" {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Sim.TickRate)
			if cfg.Sim.MaxTicks > 0 && runner.Ticks() >= cfg.Sim.MaxTicks {
				stopReason = "max ticks"
			}
		case sig := <-shutdownCh:
			stopReason = sig.String()
		}
	}

	// 10. Shutdown
	last := spatial.LastStats()
	log.Info("simulation stopping",
		zap.String("reason", stopReason),
		zap.Uint64("ticks", runner.Ticks()),
		zap.Int("live", world.Pool().Live()),
		zap.Int("indexed", last.Indexed),
		zap.Int("crossings", crossings.Crossings),
		zap.Int("exits", crossings.Exits),
		zap.Int("destroyed", cleanup.Destroyed()),
		zap.Int("script_errors", motion.ScriptErrors()))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := persistence.Flush(stopCtx); err != nil {
		log.Error("final flush", zap.Error(err))
	}
	if obs != nil {
		if err := obs.Shutdown(stopCtx); err != nil {
			log.Warn("observer shutdown", zap.Error(err))
		}
	}
	log.Info("simulation stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
