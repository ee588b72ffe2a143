// Command mcsniffproxy is the embedding program the core spec delegates
// CLI, configuration loading and process lifecycle to (SPEC_FULL.md §11).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cobaltcraft/mc-sniffproxy/internal/listener"
	"github.com/cobaltcraft/mc-sniffproxy/internal/session"
	"github.com/cobaltcraft/mc-sniffproxy/mcpr"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcsniffproxy",
		Short: "Man-in-the-middle inspection proxy for the Minecraft Java protocol",
	}
	root.AddCommand(serveCmd(), replayCmd())
	return root
}

func serveCmd() *cobra.Command {
	var (
		listenAddr string
		remoteHost string
		remotePort uint16
		configPath string
		record     bool
		recordDir  string
		protocol   int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy, forwarding and logging traffic between a client and a real server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			l := listener.New(listener.Config{
				ListenAddr: listenAddr,
				Remote:     session.Remote{Host: remoteHost, Port: remotePort},
				ConfigPath: configPath,
				Record:     record,
				RecordDir:  recordDir,
				Protocol:   protocol,
				Logger:     logger,
			})

			ctx, cancel := context.WithCancel(context.Background())
			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigs
				logger.Info("shutdown signal received")
				cancel()
			}()

			errCh := make(chan error, 1)
			go func() { errCh <- l.Listen(ctx) }()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			return l.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":25565", "Local listen address clients connect to")
	cmd.Flags().StringVar(&remoteHost, "remote-host", "127.0.0.1", "Real server hostname to forward to")
	cmd.Flags().Uint16Var(&remotePort, "remote-port", 25566, "Real server port to forward to")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to the filter configuration JSON file (hot-reloaded every 5s)")
	cmd.Flags().BoolVar(&record, "record", false, "Also record each session's clientbound stream as a ReplayMod (.mcpr) file")
	cmd.Flags().StringVar(&recordDir, "record-dir", ".", "Directory recordings are written to when --record is set")
	cmd.Flags().IntVar(&protocol, "protocol", 47, "Minecraft network protocol number, recorded in replay metadata")

	return cmd
}

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Inspect and validate .mcpr replay recordings produced by --record",
	}
	cmd.AddCommand(replayValidateCmd())
	return cmd
}

func replayValidateCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "validate <replay.mcpr> [replay2.mcpr ...]",
		Short: "Validate one or more .mcpr files for ReplayMod compatibility",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			for _, path := range args {
				var err error
				if quiet {
					err = mcpr.ValidateFileQuiet(path)
				} else {
					err = mcpr.ValidateFile(path)
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					failed = true
				} else if !quiet {
					fmt.Printf("%s: valid\n", path)
				}
			}
			if failed {
				return fmt.Errorf("one or more replay files failed validation")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress informational output; print only errors")
	return cmd
}
