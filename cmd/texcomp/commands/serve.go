package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teranos/texcomp/am"
	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/logger"
	"github.com/teranos/texcomp/server"
)

// ServeCmd runs the language server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Run the LaTeX language server",
	Long: `Run the language server. With the stdio transport the editor spawns texcomp
and speaks LSP on stdin/stdout; logs go to stderr. With the websocket transport
browser editors connect to ws://<address>/lsp.

When --root is set (or workspace.root is configured) the workspace is scanned
and, unless --no-watch is given, kept up to date as files change.`,
	RunE: runServe,
}

var (
	serveTransport string
	serveAddress   string
	serveRoot      string
	serveNoWatch   bool
)

func init() {
	ServeCmd.Flags().StringVar(&serveTransport, "transport", "", "Transport: stdio or websocket (overrides config)")
	ServeCmd.Flags().StringVar(&serveAddress, "address", "", "Listen address for the websocket transport (overrides config)")
	ServeCmd.Flags().StringVar(&serveRoot, "root", "", "Workspace root to scan (overrides config)")
	ServeCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Scan the workspace once without watching it")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if serveTransport != "" {
		cfg.Server.Transport = serveTransport
	}
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}
	if serveRoot != "" {
		cfg.Workspace.Root = serveRoot
	}
	if serveNoWatch {
		cfg.Workspace.Watch = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := startService(ctx, cfg)
	if err != nil {
		return err
	}
	defer service.Teardown()

	if cfg.Workspace.Root != "" {
		w, err := newWatcher(cfg, cfg.Workspace.Root, service)
		if err != nil {
			return err
		}
		if err := w.Scan(ctx); err != nil {
			return err
		}
		if cfg.Workspace.Watch {
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Close()
		}
	}

	srv := server.NewTexcompServer(service, cfg.Server, cfg.Completion.Limit, logger.ComponentLogger("server"))
	switch cfg.Server.Transport {
	case am.TransportWebSocket:
		return srv.ListenAndServe(ctx)
	default:
		return srv.RunStdio()
	}
}
