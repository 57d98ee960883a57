// Command gridclient is the interactive terminal GridClash player.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/Jdcabreradev/gridclash/client"
	"github.com/Jdcabreradev/gridclash/config"
	gridlog "github.com/Jdcabreradev/gridclash/logger"
)

func main() {
	cfg := config.DefaultClientConfig()
	cfg.LogMode = gridlog.RELEASE
	logMode := flag.String("log-mode", cfg.LogMode.String(), "log mode: RELEASE, VERBOSE or HIDDEN (DEV has no file output)")
	sound := flag.Bool("sound", true, "play audio cues")
	flag.StringVar(&cfg.ServerAddr, "server", cfg.ServerAddr, "server host:port")
	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory for log files")
	flag.DurationVar(&cfg.FadeDuration, "fade", cfg.FadeDuration, "cell fade duration")
	flag.Parse()

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

	c, err := client.New(cfg, log, nil)
	if err != nil {
		fail(err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Joining %s ...\n", cfg.ServerAddr)
	slot, err := c.Join(ctx)
	if err != nil {
		fail(err)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fail(err)
	}
	if err := screen.Init(); err != nil {
		fail(err)
	}
	// The screen owns the tty from here on; logs go to the file only.
	log.SetOutput(nil)
	screen.EnableMouse()

	netDone := make(chan error, 1)
	go func() { netDone <- c.Run(ctx) }()

	g := &game{
		screen: screen,
		client: c,
		cues:   newCues(*sound, log),
		frame:  cfg.FrameInterval,
		status: fmt.Sprintf("Joined as %s", slot),
	}
	g.run(ctx)

	g.cues.close()
	screen.Fini()
	stop()
	if err := <-netDone; err != nil {
		log.Logf("Main", gridlog.ERROR, "Network loop: %v", err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// run drives input, reconciliation and drawing until quit or ctx ends.
func (g *game) run(ctx context.Context) {
	ticker := time.NewTicker(g.frame)
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := g.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if !g.handleInput(ev) {
				return
			}
		case out := <-g.client.Outcomes():
			g.onOutcome(out)
		case over := <-g.client.GameOvers():
			g.onGameOver(over)
		case now := <-ticker.C:
			g.client.Reconciler().Step(now.Sub(last))
			last = now
			g.draw()
		}
	}
}
