package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ldcasilang/sui-portfolio/internal/app"
	"github.com/ldcasilang/sui-portfolio/internal/cache"
	"github.com/ldcasilang/sui-portfolio/internal/config"
	"github.com/ldcasilang/sui-portfolio/internal/logging"
	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
)

var (
	configPath string
	verbose    bool
	draftFile  string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Keep a portfolio record in sync with its Sui Move object",
	Long: `portfolio serves a public portfolio view and a password-gated editor,
reconciling the record with a Sui Move object and submitting create/update
calls signed with a server-held key.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Load()
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background sync loop",
	RunE:  runServe,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Locate the portfolio object once and print its identifier",
	RunE:  runResolve,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Reconcile once and print the confirmed record as YAML",
	RunE:  runShow,
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Submit a record read from a YAML file",
	Long: `Reads a full portfolio record from --file, reconciles to find the
existing object, and submits an update (or a create when none exists).`,
	RunE: runSave,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	saveCmd.Flags().StringVarP(&draftFile, "file", "f", "", "YAML file holding the record")
	_ = saveCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(serveCmd, resolveCmd, showCmd, saveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.Load(ctx); err != nil {
		logger.Warn("cache load failed", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(rt.service, cfg.CORSOrigin, logger.Named("http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// saves wait for local execution on the node
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("portfolio API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return rt.engine.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

func runResolve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	cachedID, _, err := rt.cache.Get(ctx, cache.KeyRecordID)
	if err != nil {
		logger.Debug("cache read failed", zap.Error(err))
	}
	res, err := rt.locator.Resolve(ctx, cachedID, rt.owner, cfg.TypeTag())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.ID, res.Strategy)
	return err
}

func runShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.Load(ctx); err != nil {
		logger.Warn("cache load failed", zap.Error(err))
	}
	rt.engine.Reconcile(ctx)
	return printStatus(cmd.OutOrStdout(), rt)
}

func runSave(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	record, err := readRecord(draftFile)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.engine.Load(ctx); err != nil {
		logger.Warn("cache load failed", zap.Error(err))
	}
	rt.engine.Reconcile(ctx)
	rt.engine.ApplyLocalDraft(fullPatch(record))

	result, err := rt.service.Save(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\t%s\n", result.Action, result.Transaction.Digest)
	if result.Transaction.ExplorerURL != "" {
		fmt.Fprintln(out, result.Transaction.ExplorerURL)
	}
	return nil
}

func readRecord(path string) (portfolio.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return portfolio.Record{}, fmt.Errorf("read draft: %w", err)
	}
	var record portfolio.Record
	if err := yaml.Unmarshal(data, &record); err != nil {
		return portfolio.Record{}, fmt.Errorf("parse draft %s: %w", path, err)
	}
	return record, nil
}

// fullPatch replaces every field of the draft with record's.
func fullPatch(record portfolio.Record) portfolio.Patch {
	skills := record.Skills
	return portfolio.Patch{
		Name:        &record.Name,
		Course:      &record.Course,
		School:      &record.School,
		About:       &record.About,
		LinkedInURL: &record.LinkedInURL,
		GitHubURL:   &record.GitHubURL,
		Skills:      &skills,
	}
}

func printStatus(w io.Writer, rt *runtime) error {
	status := rt.engine.Status()
	view := struct {
		State      string           `yaml:"state"`
		Identifier string           `yaml:"identifier,omitempty"`
		Source     string           `yaml:"source"`
		LastTx     string           `yaml:"last_transaction,omitempty"`
		Record     portfolio.Record `yaml:"record"`
	}{
		State:      string(status.State),
		Identifier: status.Identifier,
		Source:     status.Source,
		Record:     status.Record,
	}
	if status.Transaction != nil {
		view.LastTx = status.Transaction.Digest
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
