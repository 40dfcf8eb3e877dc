package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/peerlearn/internal/buildinfo"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
	"github.com/dmitrijs2005/peerlearn/internal/server"
	"github.com/dmitrijs2005/peerlearn/internal/server/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := server.NewApp(ctx, cfg, logging.NewDefault(cfg.LogLevel))
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
