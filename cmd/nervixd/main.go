// Command nervixd runs the nervix message broker: a reactor serving both
// the binary NXTCP protocol and the line-based telnet protocol over any
// number of listen addresses.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roel-gerrits/nervix/internal/diag"
	"github.com/roel-gerrits/nervix/internal/logging"
	"github.com/roel-gerrits/nervix/internal/metrics"
	"github.com/roel-gerrits/nervix/internal/reactor"
	"github.com/roel-gerrits/nervix/internal/telemetry"
	"github.com/roel-gerrits/nervix/internal/transport/nxtcp"
	"github.com/roel-gerrits/nervix/internal/transport/telnet"
)

// addrList implements flag.Value for a flag that may be repeated, one
// listen address per occurrence (e.g. -nxtcp :7000 -nxtcp 127.0.0.1:7001).
type addrList []string

func (a *addrList) String() string { return strings.Join(*a, ",") }
func (a *addrList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func main() {
	var nxtcpAddrs, telnetAddrs addrList
	flag.Var(&nxtcpAddrs, "nxtcp", "host:port to serve the NXTCP protocol on (repeatable)")
	flag.Var(&telnetAddrs, "telnet", "host:port to serve the telnet protocol on (repeatable)")
	diagAddr := flag.String("diag-addr", "", "host:port to serve /metrics and /debug/activity on (disabled if empty)")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "how long to wait for the listeners' accept loops to stop during shutdown (open client connections are not closed or waited for)")
	logFlags := logging.RegisterFlags()
	flag.Parse()

	logConfig := logFlags.ToConfig()
	log := logging.InitLogger("nervixd", logConfig)

	if len(nxtcpAddrs) == 0 && len(telnetAddrs) == 0 {
		fmt.Fprintln(os.Stderr, "nervixd: at least one -nxtcp or -telnet listen address is required")
		os.Exit(2)
	}

	m := metrics.New()
	feed := diag.NewActivityFeed(0, 0)
	tracer := telemetry.New(log, m, feed)
	clock := reactor.NewRealClock()
	r := reactor.New(clock, tracer)
	m.BindStateGauges(r.StateCounts)

	var wg sync.WaitGroup
	var nxServices []*nxtcp.Service
	var telServices []*telnet.Service

	for _, addr := range nxtcpAddrs {
		svc, err := nxtcp.Listen(addr, r, clock, log)
		if err != nil {
			log.Error("failed to listen for nxtcp", slog.String("addr", addr), slog.String("err", err.Error()))
			os.Exit(1)
		}
		nxServices = append(nxServices, svc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Serve(); err != nil {
				log.Debug("nxtcp service stopped serving", slog.String("err", err.Error()))
			}
		}()
	}

	for _, addr := range telnetAddrs {
		svc, err := telnet.Listen(addr, r, clock, log)
		if err != nil {
			log.Error("failed to listen for telnet", slog.String("addr", addr), slog.String("err", err.Error()))
			os.Exit(1)
		}
		telServices = append(telServices, svc)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Serve(); err != nil {
				log.Debug("telnet service stopped serving", slog.String("err", err.Error()))
			}
		}()
	}

	var diagServer *http.Server
	if *diagAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
		mux.HandleFunc("/debug/activity", func(w http.ResponseWriter, req *http.Request) {
			writeActivityJSON(w, feed.Recent())
		})
		diagServer = &http.Server{Addr: *diagAddr, Handler: mux}
		go func() {
			log.Info("diagnostics server started", slog.String("addr", *diagAddr))
			if err := diagServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("diagnostics server error", slog.String("err", err.Error()))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", slog.String("signal", sig.String()))

	for _, svc := range nxServices {
		svc.Close()
	}
	for _, svc := range telServices {
		svc.Close()
	}
	if diagServer != nil {
		diagServer.Close()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("shutdown complete")
	case <-time.After(*shutdownTimeout):
		log.Warn("shutdown timed out, exiting anyway")
	}
}

func writeActivityJSON(w http.ResponseWriter, events []diag.Event) {
	w.Header().Set("Content-Type", "application/json")
	if events == nil {
		events = []diag.Event{}
	}
	if err := json.NewEncoder(w).Encode(events); err != nil {
		slog.Default().Error("failed to encode activity feed", slog.String("err", err.Error()))
	}
}
