// Command curatorctl drives the backoffice API from a terminal: list and
// filter scraped products, push them through curation and wait for the
// outcome, and browse the category tree.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/catalog"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load(".env.local", ".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "curatorctl",
		Usage:     "curate scraped products through the backoffice API",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "backoffice API base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"CATALOG_API_URL"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "bearer token sent with every request",
				EnvVars: []string{"CATALOG_API_KEY"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-request timeout",
				Value: 15 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print raw JSON instead of tables",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log requests to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			level := zerolog.WarnLevel
			if c.Bool("verbose") {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: c.App.ErrWriter, TimeFormat: time.Kitchen}).
				Level(level).
				With().
				Timestamp().
				Logger()
			return nil
		},
		Commands: []*cli.Command{
			productsCommand(),
			jobsCommand(),
			categoriesCommand(),
			statsCommand(),
		},
	}
}

func clientFrom(c *cli.Context) (*catalog.Client, error) {
	return catalog.NewClient(catalog.Config{
		BaseURL:    c.String("api-url"),
		APIKey:     c.String("api-key"),
		Timeout:    c.Duration("timeout"),
		RetryCount: 2,
	})
}
