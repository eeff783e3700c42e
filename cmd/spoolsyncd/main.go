// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spoolsync/spoolsync/internal/cloudclient"
	"github.com/spoolsync/spoolsync/internal/config"
	"github.com/spoolsync/spoolsync/internal/invclient"
	"github.com/spoolsync/spoolsync/internal/reconcile"
	"github.com/spoolsync/spoolsync/internal/scheduler"
	"github.com/spoolsync/spoolsync/internal/status"
	"github.com/spoolsync/spoolsync/internal/storage"
)

func main() {
	var (
		dbPath         = flag.String("db-path", "spoolsync.db", "path to the local SQLite cache")
		listenAddress  = flag.String("listen-address", ":9091", "address on which to expose /health, /status, /sync, /metrics")
		invBase        = flag.String("inv-base", "", "base URL of the Inv REST API")
		cloudBase      = flag.String("cloud-base", "", "base URL of the Cloud REST API")
		cloudOrgID     = flag.String("cloud-org-id", "", "Cloud organization ID")
		cloudTokenFile = flag.String("cloud-token-file", "", "file containing the Cloud bearer token")
		syncInterval   = flag.Int("sync-interval", 300, "reconciliation interval in seconds (floored at 30)")
		epsilonGrams   = flag.Float64("epsilon-grams", 0.5, "usage-delta noise floor in grams (floored at 0.01)")
		dryRun         = flag.Bool("dry-run", false, "log intended mutations instead of performing them")
		logFormat      = flag.String("log-format", "logfmt", "log output format: logfmt or json")
	)
	flag.Parse()

	logger := newLogger(*logFormat)

	db, err := storage.Open(*dbPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open local cache", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := config.New(db.DB)
	seedDefaults(context.Background(), cfg, *invBase, *cloudBase, *cloudOrgID, *syncInterval, *epsilonGrams, *dryRun)

	if *cloudTokenFile != "" {
		token, err := os.ReadFile(*cloudTokenFile)
		if err != nil {
			level.Error(logger).Log("msg", "failed to read cloud token file", "err", err)
			os.Exit(1)
		}
		if err := cfg.SetSecret(context.Background(), config.KeyCloudToken, strings.TrimSpace(string(token))); err != nil {
			level.Error(logger).Log("msg", "failed to store cloud token", "err", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	reporter := status.NewReporter(reg)

	invC := invclient.New(cfg.Get(context.Background(), config.KeyInvBase, *invBase))
	token, _ := cfg.GetSecret(context.Background(), config.KeyCloudToken)
	cloudC := cloudclient.New(
		cfg.Get(context.Background(), config.KeyCloudBase, *cloudBase),
		cfg.Get(context.Background(), config.KeyCloudOrgID, *cloudOrgID),
		token,
	)

	recon := reconcile.New(logger, invC, cloudC, db, cfg, reporter)
	sched := scheduler.New(log.With(logger, "component", "scheduler"), recon, cfg)

	mux := http.NewServeMux()
	registerHandlers(mux, logger, cfg, reporter, sched, reg)
	server := &http.Server{Addr: *listenAddress, Handler: mux}

	var g run.Group
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return sched.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		term := make(chan os.Signal, 1)
		cancelled := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)
		g.Add(
			func() error {
				select {
				case <-term:
					level.Info(logger).Log("msg", "received termination signal, shutting down")
				case <-cancelled:
				}
				return nil
			},
			func(error) {
				close(cancelled)
			},
		)
	}
	{
		g.Add(func() error {
			level.Info(logger).Log("msg", "starting http server", "listen", *listenAddress)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				level.Error(logger).Log("msg", "http server failed to shut down gracefully", "err", err)
			}
		})
	}

	if err := g.Run(); err != nil {
		level.Error(logger).Log("msg", "spoolsyncd exited with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(format string) log.Logger {
	var logger log.Logger
	if strings.EqualFold(format, "json") {
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	return logger
}

// seedDefaults writes flag-derived defaults into the Config Store on first
// boot only; SetDefault never clobbers an operator-set value, so after the
// first run these flags are inert unless the database is replaced.
func seedDefaults(ctx context.Context, cfg *config.Store, invBase, cloudBase, cloudOrgID string, syncInterval int, epsilonGrams float64, dryRun bool) {
	_ = cfg.SetDefault(ctx, config.KeyInvBase, invBase)
	_ = cfg.SetDefault(ctx, config.KeyCloudBase, cloudBase)
	_ = cfg.SetDefault(ctx, config.KeyCloudOrgID, cloudOrgID)
	_ = cfg.SetDefault(ctx, config.KeySyncInterval, strconv.Itoa(syncInterval))
	_ = cfg.SetDefault(ctx, config.KeyEpsilonGrams, strconv.FormatFloat(epsilonGrams, 'f', -1, 64))
	_ = cfg.SetDefault(ctx, config.KeyDryRun, strconv.FormatBool(dryRun))
}

// registerHandlers wires the minimal HTTP shell: health, status, manual
// sync trigger, metrics, and a pass-through settings endpoint. None of
// these carry business logic of their own — they delegate to the
// Reconciler's collaborators.
func registerHandlers(mux *http.ServeMux, logger log.Logger, cfg *config.Store, reporter *status.Reporter, sched *scheduler.Scheduler, reg *prometheus.Registry) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reporter.Snapshot())
	})

	mux.HandleFunc("/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := sched.TriggerNow(r.Context()); err != nil {
			level.Error(logger).Log("msg", "manual sync failed", "err", err)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.HandleFunc("/settings/", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/settings/")
		if key == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"key": key, "value": cfg.Get(r.Context(), key, "")})
		case http.MethodPut:
			var body struct {
				Value string `json:"value"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if err := cfg.Set(r.Context(), key, body.Value); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintln(w, err)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}
