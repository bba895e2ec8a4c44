package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thisdougb/multisync/internal/config"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine and its HTTP endpoints",
	Long: `Run the sync engine: every sync interval the local value of each tracked
metric is written to this node's column. SIGHUP reloads the configuration,
SIGINT and SIGTERM shut down.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("http-addr", "", "listen address of the read-only HTTP endpoints")
	serveCmd.Flags().String("admin-addr", "", "listen address of the admin endpoints, an empty MSS_ADMIN_ADDR disables them")
	serveCmd.Flags().String("sync-interval", "", "period between sync ticks, e.g. 5m")
	serveCmd.Flags().String("initial-delay", "", "delay before the first tick, e.g. 60s")
	serveCmd.Flags().String("scheduler", "", "global or affinity")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if config.StringValue("MSS_VALUE_SOURCE") == "" {
		return errors.New("serve needs a value source, set MSS_VALUE_SOURCE or --value-source")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.Start(ctx)

	servers := []*http.Server{{
		Addr:              config.StringValue("MSS_HTTP_ADDR"),
		Handler:           engine.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}}
	if addr := config.StringValue("MSS_ADMIN_ADDR"); addr != "" {
		servers = append(servers, &http.Server{
			Addr:              addr,
			Handler:           engine.AdminHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	serveErr := make(chan error, len(servers))
	for _, server := range servers {
		go func() {
			config.LogInfo(ctx, fmt.Sprintf("listening on %s", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			if err := reloadEnvFiles(cmd); err != nil {
				config.LogError(ctx, fmt.Sprintf("reload failed, keeping the old configuration: %v", err))
				continue
			}
			if err := engine.Reload(ctx); err != nil {
				config.LogError(ctx, fmt.Sprintf("reload failed, keeping the old configuration: %v", err))
			}
		case err := <-serveErr:
			shutdown(servers)
			return err
		case <-ctx.Done():
			config.LogInfo(context.Background(), "shutting down")
			return shutdown(servers)
		}
	}
}

func shutdown(servers []*http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var first error
	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
