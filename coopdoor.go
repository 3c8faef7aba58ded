package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

var myBuild string

func main() {
	fmt.Printf("coopdoor build %s\n", myBuild)

	cfgfile := flag.String("cfg", "coopdoor.yaml", "Config file")
	demo := flag.Bool("demo", false, "Raise then lower the door once and exit")
	flag.Parse()

	cfg, err := LoadConfig(*cfgfile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *demo, log); err != nil {
		log.Error("exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *Config, demo bool, log *zap.Logger) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return fmt.Errorf("open hardware: %w", err)
	}
	defer hw.Close()

	app, err := NewApp(cfg, hw, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if demo {
		raise, lower := app.motor.Demo(cfg.LoopPeriod)
		log.Info("demo done",
			zap.Stringer("raise", raise.Reason), zap.Float64("raise_ma", raise.Milliamps),
			zap.Stringer("lower", lower.Reason), zap.Float64("lower_ma", lower.Milliamps))
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app.Start()
	log.Info("running", zap.String("client_id", cfg.ClientID), zap.Duration("session", cfg.Power.Session))
	app.Run(ctx)

	log.Info("shutting down")
	return nil
}
