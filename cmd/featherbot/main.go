// Command featherbot starts the Gateway composition root against the
// process environment and runs until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/featherbot/featherbot/internal/config"
	"github.com/featherbot/featherbot/pkg/gateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("featherbot: load config: %v", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		log.Fatalf("featherbot: init gateway: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = gw.Start(ctx)
	gw.Stop()
	if err != nil {
		log.Fatalf("featherbot: %v", err)
	}
}
