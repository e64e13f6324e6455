package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"curator/internal/server"
	"curator/internal/watcher"

	"github.com/spf13/cobra"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var autoSave bool

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Follow a dataset folder and add or drop samples as audio files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, extractor, err := ctx.openSession(args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("auto-save") {
				autoSave = ctx.config.Watch.AutoSave
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			handler := &watcher.SessionHandler{
				Session:  session,
				AutoSave: autoSave,
				Logger:   ctx.logger,
			}
			debounce := time.Duration(ctx.config.Watch.DebounceMS) * time.Millisecond
			w := watcher.New(session.Folder(), extractor.IsAudioFile, handler, debounce, ctx.logger)

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (%d samples), press Ctrl+C to stop\n", session.Folder(), session.Len())
			if err := w.Run(runCtx); err != nil {
				return err
			}

			if !autoSave && session.HasUnsavedChanges() {
				ctx.logger.WithField("samples", session.Len()).Info("Saving changes seen while watching")
				return session.Save()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoSave, "auto-save", false, "Save the manifest after every change")
	return cmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve [dir|manifest]",
		Short: "Serve a dataset over the local HTTP API",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			if listen != "" {
				if err := cfg.SetListen(listen); err != nil {
					return err
				}
			}

			session, extractor, err := ctx.openSession(args)
			if err != nil {
				return err
			}

			db, err := ctx.openRegistry()
			if err != nil {
				ctx.logger.WithError(err).Warn("Recent datasets registry unavailable")
				db = nil
			} else {
				defer db.Close()
			}

			srv := server.NewServer(cfg, session, extractor, db, ctx.logger)

			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(runCtx, watch); err != nil {
				return err
			}

			if session.HasUnsavedChanges() {
				ctx.logger.WithField("unsaved", session.UnsavedCount()).Warn("Server stopped with unsaved changes")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (host:port), overrides the configuration")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the dataset folder for new and removed audio files")
	return cmd
}
