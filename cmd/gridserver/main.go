// Command gridserver runs an authoritative GridClash server on a UDP port.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Jdcabreradev/gridclash/config"
	gridlog "github.com/Jdcabreradev/gridclash/logger"
	"github.com/Jdcabreradev/gridclash/metrics"
	"github.com/Jdcabreradev/gridclash/metrics/feed"
	"github.com/Jdcabreradev/gridclash/server"
)

func main() {
	cfg := config.DefaultServerConfig()
	port := flag.Uint("port", uint(cfg.Port), "UDP port to listen on")
	logMode := flag.String("log-mode", cfg.LogMode.String(), "log mode: DEV, RELEASE, VERBOSE or HIDDEN")
	flag.StringVar(&cfg.IP, "ip", cfg.IP, "IP address to bind")
	flag.DurationVar(&cfg.BroadcastPeriod, "period", cfg.BroadcastPeriod, "snapshot broadcast period")
	flag.DurationVar(&cfg.PlayerTimeout, "timeout", cfg.PlayerTimeout, "silence after which a player slot is freed")
	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory for log files")
	flag.StringVar(&cfg.ObserveAddr, "observe", cfg.ObserveAddr, "HTTP address for the metrics feed (empty disables it)")
	flag.Parse()

	if *port > 0xFFFF {
		fail(fmt.Errorf("port %d out of range", *port))
	}
	cfg.Port = uint16(*port)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counters := &metrics.Counters{}
	observers := metrics.Fanout{counters, metrics.NewLogObserver(log, "Metrics")}

	var hub *feed.Hub
	if cfg.ObserveAddr != "" {
		hub = feed.NewHub(log, counters)
		observers = append(observers, hub)
	}

	srv, err := server.New(cfg, log, observers)
	if err != nil {
		log.Log("Main", gridlog.ERROR, err.Error())
		log.Close()
		fail(err)
	}

	if hub != nil {
		go func() {
			if err := hub.Serve(ctx, cfg.ObserveAddr); err != nil {
				log.Logf("Main", gridlog.ERROR, "Metrics feed stopped: %v", err)
			}
		}()
	}

	if err := srv.Serve(ctx); err != nil {
		log.Log("Main", gridlog.ERROR, err.Error())
		log.Close()
		fail(err)
	}

	s := counters.Snapshot()
	log.Logf("Main", gridlog.INFO, "Sent %d snapshots, arbitrated %d events, %d joins, %d dropped datagrams",
		s.SnapshotsSent, s.EventsArbitrated, s.Joins, s.Dropped)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
