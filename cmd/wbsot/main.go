// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command wbsot runs a resolved rate reaching loop on a planar arm through a
// prioritized stack of tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/curioloop/wbsot/diag"
	"github.com/curioloop/wbsot/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "wbsot",
		Short: "Prioritized stack of tasks on a planar arm",
		Long: `wbsot drives the end point of a planar arm towards a target with a
prioritized stack of QP levels: end point tracking under joint limits first,
then a postural task, both bounded by joint velocity limits.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Init(v, cfgFile)
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./wbsot.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newRunCmd(v), newConfigCmd(v))
	return root
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var dump, metricsAddr string
	var trace bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reaching loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			log, err := newLogger(cmd.ErrOrStderr(), cfg.Logging)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var srv *http.Server
			if metricsAddr != "" {
				srv = serveMetrics(metricsAddr, log)
				defer shutdown(srv)
			}

			var rec *diag.YAMLRecorder
			var sink diag.Recorder
			switch {
			case dump != "":
				rec = new(diag.YAMLRecorder)
				sink = rec
			case trace:
				sink = diag.SlogRecorder{Logger: log, Level: slog.LevelDebug}
			}
			start := time.Now()
			out, err := reach(ctx, cfg, log, sink)
			if err != nil {
				log.Error("reaching failed", "error", err)
				return err
			}
			log.Info("reaching done",
				"cycles", out.Cycles,
				"distance", out.Distance,
				"elapsed", time.Since(start))

			if rec != nil {
				if err := writeDump(dump, rec); err != nil {
					return err
				}
				log.Info("diagnostics written", "file", dump, "series", rec.Len())
			}
			if err := yaml.NewEncoder(cmd.OutOrStdout()).Encode(out); err != nil {
				return err
			}

			// keep serving until interrupted
			if srv != nil {
				log.Info("serving metrics, interrupt to exit", "addr", metricsAddr)
				<-ctx.Done()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dump, "dump", "", "write the level problems of every cycle to this YAML file")
	cmd.Flags().BoolVar(&trace, "trace", false, "log the level problems of every cycle at debug level")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().Int("cycles", 0, "number of control cycles")
	_ = v.BindPFlag("control.cycles", cmd.Flags().Lookup("cycles"))
	return cmd
}

func newConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newLogger(w io.Writer, c config.LoggingConfig) (*slog.Logger, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func writeDump(file string, rec *diag.YAMLRecorder) (err error) {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := rec.Encode(f); err != nil {
		return fmt.Errorf("dump %s: %w", file, err)
	}
	return nil
}

func serveMetrics(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "error", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
