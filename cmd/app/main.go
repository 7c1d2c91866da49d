package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"

	"SwingPull/internal/di"
	"SwingPull/internal/usecase"
	"SwingPull/pkg/config"

	"github.com/joho/godotenv"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", "run", "run | backtest | train | serve")
	from := flag.String("from", "", "start date YYYY-MM-DD (run: resume point, backtest/train: range start)")
	to := flag.String("to", "", "end date YYYY-MM-DD (default: today)")
	force := flag.Bool("force", false, "reprocess dates already marked successful")
	thresholds := flag.String("thresholds", "", "trainer: comma-separated impulse thresholds, e.g. 6,8,10")
	windows := flag.String("windows", "", "trainer: comma-separated window lengths, e.g. 3,4,5")
	bands := flag.String("bands", "", "trainer: comma-separated stability bands, e.g. 1.5,2,3")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s mode=%s index=%s", cfg.Environment, *mode, cfg.Universe.Index)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	ctx := context.Background()
	switch *mode {
	case "run":
		err = app.RunPipeline(ctx, *from, *to, *force)
	case "backtest":
		err = app.RunBacktest(ctx, *from, *to)
	case "train":
		err = app.RunTrainer(ctx, *from, *to, usecase.TrainerGrid{
			Thresholds: parseFloats(*thresholds),
			Windows:    parseInts(*windows),
			Bands:      parseFloats(*bands),
		})
	case "serve":
		err = app.Serve(ctx)
	default:
		log.Fatalf("unknown mode %q", *mode)
	}

	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}

func parseFloats(s string) []float64 {
	if s == "" {
		return nil
	}
	var out []float64
	for _, part := range strings.Split(s, ",") {
		if v, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func parseInts(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		if v, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, v)
		}
	}
	return out
}
