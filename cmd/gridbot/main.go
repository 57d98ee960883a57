// Command gridbot is a headless GridClash player. It joins a server, claims
// a random free cell on every click interval and prints outcome totals and
// latency statistics when the run ends.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jdcabreradev/gridclash/client"
	"github.com/Jdcabreradev/gridclash/config"
	"github.com/Jdcabreradev/gridclash/grid"
	gridlog "github.com/Jdcabreradev/gridclash/logger"
	"github.com/Jdcabreradev/gridclash/metrics"
	"github.com/Jdcabreradev/gridclash/metrics/feed"
)

func main() {
	cfg := config.DefaultClientConfig()
	id := flag.String("id", "bot", "name used in log lines")
	duration := flag.Duration("duration", 30*time.Second, "how long to play")
	click := flag.Duration("click", 250*time.Millisecond, "interval between claims")
	observe := flag.String("observe", "", "HTTP address for the metrics feed (empty disables it)")
	logMode := flag.String("log-mode", cfg.LogMode.String(), "log mode: DEV, RELEASE, VERBOSE or HIDDEN")
	asJSON := flag.Bool("json", false, "print totals as JSON")
	flag.StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "server host:port")
	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory for log files")
	flag.Parse()

	if *click <= 0 {
		fail(errors.New("click must be greater than 0"))
	}
	mode, err := gridlog.ParseMode(*logMode)
	if err != nil {
		fail(err)
	}
	cfg.LogMode = mode

	log, err := gridlog.NewLogger(cfg.LogDir, cfg.LogMode)
	if err != nil {
		fail(err)
	}
	defer log.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, *duration)
	defer cancel()

	counters := &metrics.Counters{}
	observers := metrics.Fanout{counters}
	if *observe != "" {
		hub := feed.NewHub(log, counters)
		observers = append(observers, hub)
		go func() {
			if err := hub.Serve(ctx, *observe); err != nil {
				log.Logf(*id, gridlog.ERROR, "Metrics feed stopped: %v", err)
			}
		}()
	}

	c, err := client.New(cfg, log, observers)
	if err != nil {
		fail(err)
	}
	defer c.Close()

	slot, err := c.Join(ctx)
	if err != nil {
		fail(fmt.Errorf("%s: join: %w", *id, err))
	}
	log.Logf(*id, gridlog.INFO, "Playing as %s for %s (session %s)", slot, *duration, c.Session())

	netDone := make(chan error, 1)
	go func() { netDone <- c.Run(ctx) }()

	play(ctx, c, *click, cfg.FrameInterval, log, *id)
	if err := <-netDone; err != nil {
		log.Logf(*id, gridlog.ERROR, "Network loop: %v", err)
	}

	report(counters.Snapshot(), *id, *asJSON)
}

// play claims a random free cell every click until ctx ends. Presentation
// is stepped every frame the way the terminal client does it.
func play(ctx context.Context, c *client.Client, click, frame time.Duration, log *gridlog.Logger, id string) {
	ticker := time.NewTicker(click)
	defer ticker.Stop()
	frames := time.NewTicker(frame)
	defer frames.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-frames.C:
			c.Reconciler().Step(now.Sub(last))
			last = now
		case <-c.Outcomes():
		case over := <-c.GameOvers():
			if over.Winner == c.Slot() {
				log.Logf(id, gridlog.INFO, "Won round %d", over.Round)
			}
		case <-ticker.C:
			cell, ok := pickFree(c)
			if !ok {
				continue
			}
			if _, err := c.Claim(grid.CoordOf(cell)); err != nil {
				log.Logf(id, gridlog.DEBUG, "Claim %s skipped: %v", grid.CoordOf(cell), err)
			}
		}
	}
}

func pickFree(c *client.Client) (int, bool) {
	g := c.Reconciler().State().Grid
	free := make([]int, 0, grid.Cells)
	for i, o := range g {
		if o == grid.Empty {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return 0, false
	}
	return free[rand.IntN(len(free))], true
}

func report(s metrics.CountersSnapshot, id string, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			fail(err)
		}
		return
	}
	fmt.Printf("%s: sent %d claims, %d retries\n", id, s.EventsSent, s.EventsRetried)
	fmt.Printf("  delivered %d  lost %d  round-over %d  failed %d\n", s.Delivered, s.Lost, s.RoundOver, s.Failed)
	fmt.Printf("  snapshots %d  games over %d  dropped %d\n", s.SnapshotsReceived, s.GamesOver, s.Dropped)
	fmt.Printf("  latency mean %.1fms  max %.1fms  last %.1fms\n", s.LatencyMeanMs, s.LatencyMaxMs, s.LatencyLastMs)
	fmt.Printf("  mean cells converging per snapshot %.2f\n", s.DivergenceMean)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
