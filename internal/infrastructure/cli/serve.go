package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/ganttly/internal/infrastructure/rest"
	"github.com/felixgeelhaar/ganttly/internal/infrastructure/watch"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveNoWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ganttly HTTP backend with auto-versioning and store watching",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir()
		if err != nil {
			return err
		}
		defer services.Session.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := services.Session.Load(ctx); err != nil {
			return fmt.Errorf("load project %q: %w", services.Config.ProjectID, err)
		}

		addr := serveAddr
		if addr == "" {
			addr = services.Config.ListenAddr
		}

		server := rest.NewServer(addr, services.Workspace.Store, services.Workspace.Publisher)

		// Auto-versioning loop.
		go func() {
			if err := services.Version.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "auto-versioning stopped: %v\n", err)
			}
		}()

		// Reload the session when the store changes on disk.
		if !serveNoWatch {
			watcher, err := watch.NewStoreWatcher(0, func(ev watch.ChangeEvent) {
				if err := services.Session.Load(context.Background()); err != nil {
					fmt.Fprintf(os.Stderr, "reload after %s of %s failed: %v\n", ev.ChangeType, ev.Path, err)
				}
			})
			if err != nil {
				return fmt.Errorf("create store watcher: %w", err)
			}
			if err := watcher.WatchStore(services.Workspace.Store.Root()); err != nil {
				return fmt.Errorf("watch store: %w", err)
			}
			go func() {
				if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					fmt.Fprintf(os.Stderr, "store watcher stopped: %v\n", err)
				}
			}()
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides the configured listen_addr)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable reloading when the store changes on disk")
	RootCmd.AddCommand(serveCmd)
}
