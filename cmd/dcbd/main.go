package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "configs/dcbd.yaml", "path to the daemon configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap dcbd: %v", err)
	}
	if err := rt.run(ctx); err != nil {
		log.Fatalf("run dcbd: %v", err)
	}
}
