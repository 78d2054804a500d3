package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dmitrijs2005/gophauth/internal/client/api"
	"github.com/dmitrijs2005/gophauth/internal/client/cli"
	"github.com/dmitrijs2005/gophauth/internal/client/config"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.LoadConfig()

	sessions, err := session.Open(ctx, cfg.SessionDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening session database: %v\n", err)
		os.Exit(1)
	}
	defer sessions.Close()

	app := cli.NewApp(cfg.ServerURL, api.New(cfg.ServerURL, cfg.RequestTimeout), sessions, os.Stdin, os.Stdout)

	if err := app.Run(ctx, config.Commands(os.Args[1:])); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		sessions.Close()
		os.Exit(1)
	}
}
