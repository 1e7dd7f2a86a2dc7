// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veranda Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/veranda-dev/veranda/internal/logging"
	"github.com/veranda-dev/veranda/internal/observability"
	"github.com/veranda-dev/veranda/internal/plugin"
	"github.com/veranda-dev/veranda/internal/plugin/apiclient"
	"github.com/veranda-dev/veranda/internal/plugin/capability"
	gojaloader "github.com/veranda-dev/veranda/internal/plugin/goja"
	"github.com/veranda-dev/veranda/internal/plugin/hostfunc"
	"github.com/veranda-dev/veranda/internal/plugin/resolver"
	"github.com/veranda-dev/veranda/internal/registry"
	"github.com/veranda-dev/veranda/internal/server"
	"github.com/veranda-dev/veranda/internal/theme"
	"github.com/veranda-dev/veranda/pkg/errutil"
)

// serveConfig holds configuration for the serve command. Values come from
// the config file first, then flags override.
type serveConfig struct {
	ListenAddr           string   `koanf:"listen-addr"`
	MetricsAddr          string   `koanf:"metrics-addr"`
	RegistryURL          string   `koanf:"registry-url"`
	PublicBaseURL        string   `koanf:"public-base-url"`
	CORSOrigins          []string `koanf:"cors-origins"`
	ProxyAuthToken       string   `koanf:"proxy-auth-token"`
	AllowBackendOverride bool     `koanf:"allow-backend-override"`
	Theme                string   `koanf:"theme"`
	LogFormat            string   `koanf:"log-format"`
	LogLevel             string   `koanf:"log-level"`
}

// Validate checks that the configuration is valid.
func (cfg *serveConfig) Validate() error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen-addr is required")
	}
	if cfg.RegistryURL == "" {
		return fmt.Errorf("registry-url is required")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", cfg.LogFormat)
	}
	if cfg.Theme != string(theme.ModeLight) && cfg.Theme != string(theme.ModeDark) {
		return fmt.Errorf("theme must be 'light' or 'dark', got %q", cfg.Theme)
	}
	return nil
}

// Default values for serve command flags.
const (
	defaultListenAddr  = "127.0.0.1:8080"
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultTheme       = "light"
	defaultLogFormat   = "json"
	defaultLogLevel    = "info"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal server",
		Long: `Start the portal server: the plugin listing, slot rendering, and the
backend proxy that keeps plugin credentials server-side.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("listen-addr", defaultListenAddr, "portal HTTP listen address")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("registry-url", "", "plugin registry base URL")
	cmd.Flags().String("public-base-url", "", "base URL plugins reach the portal on (default: http://listen-addr)")
	cmd.Flags().StringSlice("cors-origins", nil, "allowed CORS origins for portal pages")
	cmd.Flags().String("proxy-auth-token", "", "bearer token attached to proxied plugin backend requests")
	cmd.Flags().Bool("allow-backend-override", false, "let plugin records route API calls directly to their backend (development)")
	cmd.Flags().String("theme", defaultTheme, "initial portal theme (light or dark)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")

	return cmd
}

// loadServeConfig merges the config file and flags into a serveConfig.
// Flags that were explicitly set win over file values.
func loadServeConfig(flags *pflag.FlagSet) (*serveConfig, error) {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configFile, err)
		}
	}
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("loading flags: %w", err)
	}

	cfg := &serveConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runServe wires the runtime together and blocks until shutdown.
func runServe(ctx context.Context, cfg *serveConfig) error {
	logging.SetDefault("veranda", version, cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting portal server",
		"listen_addr", cfg.ListenAddr,
		"registry_url", cfg.RegistryURL,
		"log_format", cfg.LogFormat,
	)

	themes := theme.NewStore(theme.Default(theme.Mode(cfg.Theme)))
	reg := registry.New(cfg.RegistryURL)
	res := resolver.New(reg)

	enforcer := capability.NewEnforcer()
	loader := gojaloader.NewLoader(hostfunc.New(enforcer))

	proxyBase := cfg.PublicBaseURL
	if proxyBase == "" {
		proxyBase = "http://" + cfg.ListenAddr
	}
	factory := func(md plugin.Metadata) plugin.APICaller {
		var opts []apiclient.Option
		if cfg.AllowBackendOverride && md.BackendURL != "" {
			opts = append(opts, apiclient.WithBackendOverride(md.BackendURL))
		}
		return apiclient.New(proxyBase, md.Key(), opts...)
	}

	serverOpts := []server.Option{
		server.WithClientFactory(factory),
		server.WithEnforcer(enforcer),
	}

	if cfg.MetricsAddr != "" {
		obs := observability.NewServer(cfg.MetricsAddr, func() bool { return true })
		obsErrCh, err := obs.Start()
		if err != nil {
			return fmt.Errorf("starting observability server: %w", err)
		}
		defer func() {
			if stopErr := obs.Stop(context.Background()); stopErr != nil {
				errutil.LogError(slog.Default(), "stopping observability server failed", stopErr)
			}
		}()
		go func() {
			for err := range obsErrCh {
				errutil.LogError(slog.Default(), "observability server failed", err)
			}
		}()
		serverOpts = append(serverOpts, server.WithMetrics(obs.Metrics()))
	}

	srv, err := server.New(server.Config{
		ListenAddr:     cfg.ListenAddr,
		CORSOrigins:    cfg.CORSOrigins,
		ProxyAuthToken: cfg.ProxyAuthToken,
	}, reg, res, loader, themes, serverOpts...)
	if err != nil {
		return fmt.Errorf("building portal server: %w", err)
	}

	return srv.Start(ctx)
}
