package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pokopt/fuer-assignment/internal/registry"
	"github.com/pokopt/fuer-assignment/pkg/logger"
)

// sensorsim posts synthetic readings against a running measurement server.
// The positional arguments name the kinds to simulate, like the server's.
func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "base URL of the measurement server")
		interval = flag.Duration("interval", time.Second, "delay between rounds of readings")
		count    = flag.Int("count", 0, "rounds to send, 0 means run until interrupted")
		source   = flag.String("source", "sensorsim", "source label attached to readings")
	)
	flag.Parse()

	kinds := flag.Args()
	if len(kinds) == 0 {
		fmt.Fprintln(os.Stderr, "usage: sensorsim [flags] KIND [KIND...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	log := logger.NewDefault("sensorsim")
	reg, err := registry.New(kinds)
	if err != nil {
		log.WithError(err).Fatal("invalid measurement kinds")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(10 * time.Second)

	sent := 0
rounds:
	for round := 0; *count == 0 || round < *count; round++ {
		for _, kind := range reg.Enabled() {
			// a value somewhere inside the kind's plausible interval
			value := kind.Min + rand.Float64()*(kind.Max-kind.Min)

			resp, err := client.R().
				SetContext(ctx).
				SetHeader("Content-Type", "application/json").
				SetBody(map[string]any{
					"kind":   kind.Name,
					"value":  value,
					"source": *source,
				}).
				Post("/measurements")
			if err != nil {
				if ctx.Err() != nil {
					break rounds
				}
				log.WithError(err).WithField("kind", kind.Name).Error("post failed")
				continue
			}
			if resp.StatusCode() >= 400 {
				log.WithField("kind", kind.Name).
					WithField("status", resp.StatusCode()).
					WithField("body", resp.String()).
					Warn("reading rejected")
				continue
			}
			sent++
			log.WithField("kind", kind.Name).
				WithField("value", value).
				WithField("status", resp.StatusCode()).
				Debug("reading sent")
		}

		select {
		case <-ctx.Done():
			break rounds
		case <-time.After(*interval):
		}
	}

	log.WithField("sent", sent).Info("simulation finished")
}
