// Command gcncd is the composition root: it wires a transport, the
// Controller, the homing/jogging/probing sequencers, the JobRunner, the
// RecoverySupervisor and the diagnostics HTTP server, then serves until
// a termination signal arrives. Process flags (port/addr/dir) stay
// plain `flag`, matching cmd/gcnc/main.go exactly; everything else
// (soft/speed limits, transport selection, polling interval) loads
// through config.Load, grounded on OpenMachineCore's
// zap.NewProduction+viper+signal-channel startup in cmd/server/main.go.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mastercactapus/gcnc/config"
	"github.com/mastercactapus/gcnc/diagnostics"
	"github.com/mastercactapus/gcnc/job"
	"github.com/mastercactapus/gcnc/machine"
	"github.com/mastercactapus/gcnc/recovery"
	"github.com/mastercactapus/gcnc/sequencer"
)

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "Serial port path to use (when transport.kind is serial).")
	addr := flag.String("addr", ":9091", "Address to bind the diagnostics server to.")
	dir := flag.String("dir", "./data", "Job storage directory to use.")
	cfgFile := flag.String("config", "", "Path to a YAML config file (soft/speed limits, transport, polling).")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}
	if cfg.Transport.Kind == "" || cfg.Transport.Kind == "serial" {
		cfg.Transport.Serial.Port = *port
	}

	dialer, err := cfg.Dialer()
	if err != nil {
		log.Fatalw("failed to build transport dialer", "error", err)
	}

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalw("failed to create data directory", "dir", *dir, "error", err)
	}

	ctrl := machine.New(dialer, cfg.SoftLimitsValue(), cfg.SpeedLimitsValue())

	var homed atomic.Bool
	events, stopEventLog := ctrl.Events()
	go watchHomedAndLog(events, &homed, log)

	ctrl.SetHomer(sequencer.NewHoming(ctrl, cfg.SoftLimits.Z.Max))
	ctrl.SetJogger(sequencer.NewJogging(ctrl, cfg.SoftLimitsValue()))
	ctrl.SetProber(sequencer.NewProbing(ctrl, cfg.SoftLimitsValue(), homed.Load))

	storage := job.NewFileStorage(*dir)
	runner := job.NewRunner(ctrl, storage, cfg.SoftLimitsValue())
	runner.SetHomedCheck(homed.Load)
	ctrl.SetCurrentJob(runner)

	if err := ctrl.Connect(); err != nil {
		log.Fatalw("failed to connect to controller", "error", err)
	}
	pollInterval := cfg.Polling.StatusInterval
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	ctrl.StartStatusPolling(pollInterval)

	supervisor := recovery.NewSupervisor(ctrl)
	supervisor.Start()

	diagServer := diagnostics.NewServer(ctrl, runner, supervisor, *dir, log)
	if err := diagServer.Start(*addr); err != nil {
		log.Fatalw("failed to start diagnostics server", "addr", *addr, "error", err)
	}
	log.Infow("gcncd started", "addr", *addr, "dir", *dir, "transport", cfg.Transport.Kind)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	stopEventLog()
	supervisor.Stop()
	ctrl.StopStatusPolling()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := diagServer.Shutdown(ctx); err != nil {
		log.Warnw("diagnostics server shutdown error", "error", err)
	}
	if err := ctrl.Disconnect(); err != nil {
		log.Warnw("controller disconnect error", "error", err)
	}
	log.Info("gcncd stopped")
}

// watchHomedAndLog flips homed true on a completed homing cycle and logs
// alarms/errors as they cross the event bus — the zap equivalent of the
// teacher's bare log.Printf("%s %s - %s", ...) request logger in
// cmd/gcnc/main.go, generalized from HTTP requests to the full event
// taxonomy.
func watchHomedAndLog(events <-chan machine.Event, homed *atomic.Bool, log *zap.SugaredLogger) {
	for ev := range events {
		switch ev.Kind {
		case machine.EventHomingCompleted:
			homed.Store(true)
		case machine.EventAlarm:
			log.Warnw("machine alarm", "alarm", ev.Payload)
		case machine.EventError:
			log.Errorw("machine error", "error", ev.Payload)
		case machine.EventDisconnected:
			homed.Store(false)
		}
	}
}
