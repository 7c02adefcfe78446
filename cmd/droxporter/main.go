// Copyright 2025 Esteban Alvarez. All Rights Reserved.
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
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"

	"droxporter/internal/config"
	"droxporter/internal/httpapi"
	"droxporter/internal/jobs"
	"droxporter/internal/keypool"
	"droxporter/internal/metricstore"
	"droxporter/internal/provider"
	"droxporter/internal/registry"
	"droxporter/internal/scheduler"
	"droxporter/internal/selftelemetry"
)

func main() {
	var (
		configFile = flag.String("config-file", "config.yaml", "exporter configuration file")
		providerURL = flag.String("provider-url", "https://api.digitalocean.com", "provider API base URL")
	)
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	cfg, err := config.Load(*configFile)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load configuration", "err", err)
		os.Exit(1)
	}

	store := metricstore.New(cfg.Custom.Prefix, cfg.Custom.Labels)
	reg := registry.New(store)
	pool := buildPool(cfg)
	client := provider.New(*providerURL)

	sched := scheduler.New(
		scheduler.Deps{Pool: pool, Client: client, Store: store, Registry: reg, Logger: logger, Parallelism: 8},
		scheduler.DropletListConfig{
			Interval: cfg.Droplets.Interval.Duration(),
			KeyGroup: keyGroupFor(cfg.Droplets.Keys),
			Metrics:  cfg.Droplets.Metrics,
		},
		familyJobConfigs(cfg),
	)

	var telemetry *selftelemetry.Recorder
	if cfg.ExporterMetrics.Enabled {
		telemetry = selftelemetry.New(store, pool, cfg.ExporterMetrics.Metrics)
	}

	var g run.Group

	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return sched.Run(ctx)
		}, func(error) {
			cancel()
		})
	}

	if telemetry != nil {
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			telemetry.Run(ctx, cfg.ExporterMetrics.Interval.Duration())
			return nil
		}, func(error) {
			cancel()
		})
	}

	{
		handler := httpapi.Handler(store)
		if cfg.Endpoint.Auth.Enabled {
			handler = httpapi.BasicAuth(cfg.Endpoint.Auth.Login, cfg.Endpoint.Auth.Password, handler)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)

		addr := fmt.Sprintf("%s:%d", cfg.Endpoint.Host, cfg.Endpoint.Port)
		server := &http.Server{Addr: addr, Handler: mux}

		g.Add(func() error {
			level.Info(logger).Log("msg", "starting metrics server", "addr", addr, "tls", cfg.Endpoint.SSL.Enabled)
			if cfg.Endpoint.SSL.Enabled {
				return server.ListenAndServeTLS(cfg.Endpoint.SSL.RootCertPath, cfg.Endpoint.SSL.KeyPath)
			}
			return server.ListenAndServe()
		}, func(err error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		})
	}

	{
		term := make(chan os.Signal, 1)
		cancel := make(chan struct{})
		signal.Notify(term, os.Interrupt, syscall.SIGTERM)

		g.Add(func() error {
			select {
			case <-term:
				level.Info(logger).Log("msg", "received shutdown signal, exiting gracefully")
			case <-cancel:
			}
			return nil
		}, func(error) {
			close(cancel)
		})
	}

	if err := g.Run(); err != nil {
		level.Error(logger).Log("msg", "exporter exited with error", "err", err)
		os.Exit(1)
	}
}

func buildPool(cfg config.Config) *keypool.Pool {
	seen := make(map[string]*keypool.Key)
	groups := make(map[string][]string)

	addGroup := func(group string, tokens []string) {
		if len(tokens) == 0 {
			return
		}
		groups[group] = append(groups[group], tokens...)
		for _, tok := range tokens {
			if _, ok := seen[tok]; !ok {
				seen[tok] = keypool.NewKey(tok, group, 1.0)
			}
		}
	}

	addGroup(keypool.DefaultGroup, cfg.DefaultKeys)
	addGroup("droplets", cfg.Droplets.Keys)
	for family, fc := range cfg.Metrics {
		if !fc.Enabled {
			continue
		}
		addGroup(family, fc.Keys)
	}

	keys := make([]*keypool.Key, 0, len(seen))
	for _, k := range seen {
		keys = append(keys, k)
	}
	return keypool.NewPool(keys, groups)
}

func keyGroupFor(tokens []string) string {
	if len(tokens) == 0 {
		return keypool.DefaultGroup
	}
	return "droplets"
}

func familyJobConfigs(cfg config.Config) []scheduler.FamilyJobConfig {
	var out []scheduler.FamilyJobConfig
	for family, fc := range cfg.Metrics {
		if !fc.Enabled {
			continue
		}
		def, known := jobs.Table[family]
		if !known {
			continue
		}
		interval := fc.Interval.Duration()
		if interval == 0 {
			interval, _ = time.ParseDuration(def.DefaultInterval)
		}
		keyGroup := family
		if len(fc.Keys) == 0 {
			keyGroup = keypool.DefaultGroup
		}
		out = append(out, scheduler.FamilyJobConfig{
			Family:   family,
			Interval: interval,
			KeyGroup: keyGroup,
			SubTypes: fc.Types,
		})
	}
	return out
}
