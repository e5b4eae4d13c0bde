package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app"
	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/config"
)

func main() {
	input := flag.String("in", "", "input PGN file (overrides INPUT_PGN)")
	output := flag.String("out", "", "output PGN file (overrides OUTPUT_PGN)")
	preset := flag.String("preset", "", "preset: quick-scan, deep-prep, blitz-repertoire")
	flag.Parse()

	start := time.Now()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *preset != "" {
		if err := cfg.ApplyPreset(*preset); err != nil {
			log.Fatalf("%v", err)
		}
		cfg.Validate()
	}
	if *input != "" {
		cfg.Output.InputPGN = *input
	}
	if *output != "" {
		cfg.Output.OutputPGN = *output
	}
	if cfg.Output.InputPGN == "" {
		log.Fatalf("no input PGN: set INPUT_PGN or pass -in")
	}

	app.MustInitDB()

	// Ctrl-C stops the batch at the next ply boundary; completed games keep
	// their annotations, in-flight analysis is discarded.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Hour)
	defer cancel()

	res, err := app.RunFiles(ctx, cfg, nil)
	stopped := errors.Is(ctx.Err(), context.Canceled)
	if err != nil && !stopped {
		log.Fatalf("analysis failed: %v", err)
	}
	if stopped {
		log.Printf("Stopped: output preserved up to the last completed game")
	}

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer saveCancel()
	if err := app.SaveRepertoire(saveCtx, "local", res.Entries); err != nil {
		log.Printf("SaveRepertoire failed: %v", err)
	}

	log.Printf("Done: %d games, %d positions, took %s", len(res.Games), res.Positions, time.Since(start))
}
