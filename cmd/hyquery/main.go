package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"hyquery/internal/app"
	"hyquery/pkg/host"
)

func main() {
	// build metadata - set via ldflags during build/release
	var version = "dev"

	_ = godotenv.Load(".env")

	var opts app.Options
	flag.StringVar(&opts.ConfigRoot, "config-root", ".", "directory holding the HyQuery/ config folder")
	flag.StringVar(&opts.ListenAddr, "bind", ":5520", "UDP address to answer queries on")
	flag.StringVar(&opts.ForwardAddr, "forward", "", "UDP address to forward non-query traffic to (empty drops it)")
	flag.StringVar(&opts.AdminAddr, "admin-addr", "", "HTTP address for /metrics and health probes (empty disables)")
	flag.StringVar(&opts.UpdateCron, "update-cron", "0 * * * *", "cron schedule for update checks, or 'off'")
	flag.StringVar(&opts.ServerName, "name", host.DefaultServerName, "server name reported in responses")
	flag.StringVar(&opts.MOTD, "motd", "", "message of the day")
	flag.IntVar(&opts.MaxPlayers, "max-players", 100, "maximum player slots")
	flag.StringVar(&opts.PublicHost, "public-host", "", "public hostname advertised when requested")
	flag.Parse()
	opts.Version = version

	a, err := app.New(opts)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		log.Printf("signal received: %v, shutting down", s)
		cancel()
	}()

	if err := a.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
