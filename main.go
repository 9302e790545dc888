package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/martok9803/kyc-faceauth-dev/console"
	log "github.com/martok9803/kyc-faceauth-dev/logging"
	"github.com/martok9803/kyc-faceauth-dev/sandbox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// version is set at build time via ldflags
var version = "dev"

var (
	configPath string
	config     Config
)

var rootCmd = &cobra.Command{
	Use:   "kyc-console",
	Short: "Operator console for the identity-verification API",
	Long: `kyc-console serves a small web page that lets an operator exercise the
identity-verification API by hand: presigned uploads of an identity document
and a selfie, a liveness session, and the KYC submission that ties them together.

Example usage:
  kyc-console serve --config config.json   # console against the configured API
  kyc-console serve --sandbox              # console against a local sandbox API
  kyc-console sandbox                      # only the sandbox API`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = readConfigFile(configPath)
		if err != nil {
			return err
		}
		log.InitLogger(config.LogLevel, config.LogFormat)
		if configPath != "" {
			slog.Info("using config", "path", configPath)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the operator console",
	RunE: func(cmd *cobra.Command, args []string) error {
		withSandbox, _ := cmd.Flags().GetBool("sandbox")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var servers []*Server
		if withSandbox {
			sandboxServer, err := newSandboxServer(config.SandboxConfig)
			if err != nil {
				return err
			}
			config.ApiBaseUrl = config.SandboxConfig.BaseURL()
			servers = append(servers, sandboxServer)
		}
		if config.ApiBaseUrl == "" {
			return fmt.Errorf("no api_base_url configured, set it or use --sandbox")
		}

		store, err := createWorkspaceStore(&config)
		if err != nil {
			return fmt.Errorf("failed to instantiate workspace storage: %w", err)
		}

		registry := prometheus.NewRegistry()
		metrics := newConsoleMetrics(registry)
		client := console.NewHTTPClient(config.ApiBaseUrl, config.RequestTimeout, metrics.observeRemote)

		serverState := ServerState{
			apiBaseURL: config.ApiBaseUrl,
			console:    console.New(client),
			store:      store,
			metrics:    metrics,
			registry:   registry,
		}

		consoleServer, err := NewServer(&serverState, config.ServerConfig)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		servers = append(servers, consoleServer)

		return runServers(ctx, servers...)
	},
}

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run a local stand-in for the verification API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server, err := newSandboxServer(config.SandboxConfig)
		if err != nil {
			return err
		}
		return runServers(ctx, server)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "kyc-console version %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path for the config.json to use")
	serveCmd.Flags().Bool("sandbox", false, "also run the sandbox API and point the console at it")

	rootCmd.AddCommand(serveCmd, sandboxCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newSandboxServer(config sandbox.Config) (*Server, error) {
	signer, err := sandbox.NewHmacTokenSigner(config.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate sandbox signer: %w", err)
	}
	if config.SigningKey == "" {
		slog.Warn("No sandbox signing key configured, using a random one")
	}
	service := sandbox.NewService(config, signer)
	return newServer("sandbox", service.Handler(), ServerConfig{Host: config.Host, Port: config.Port}), nil
}

// runServers serves until ctx is done or one server fails, then stops all of
// them.
func runServers(ctx context.Context, servers ...*Server) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s: failed to listen and serve: %w", srv.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		for _, srv := range servers {
			_ = srv.Stop()
		}
		return nil
	})
	return g.Wait()
}
