package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"go.lsp.dev/protocol"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/watch"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/middleware"
)

const pomPattern = "**/pom.xml"

type fileReport struct {
	Path        string                `json:"path"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics"`
	Error       string                `json:"error,omitempty"`
}

func checkCmd(configPath *string) *cobra.Command {
	var (
		root     string
		watchDir bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Diagnose every POM file under a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			abs, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", root, err)
			}
			if !watchDir {
				_, err := a.checkAll(ctx, abs, cmd.OutOrStdout())
				return err
			}
			return a.watchAndCheck(ctx, abs, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "directory to search for pom.xml files")
	cmd.Flags().BoolVar(&watchDir, "watch", false, "check again whenever a POM changes")
	return cmd
}

// findPOMs lists the pom.xml files under root, skipping build output and
// hidden directories.
func findPOMs(root string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pomPattern)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", root, err)
	}
	var out []string
	for _, m := range matches {
		if skipped(m) {
			continue
		}
		out = append(out, filepath.Join(root, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

func skipped(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == "target" || (strings.HasPrefix(part, ".") && part != ".") {
			return true
		}
	}
	return false
}

// checkAll diagnoses every POM under root concurrently and writes one JSON
// report per file, in path order.
func (a *app) checkAll(ctx context.Context, root string, w io.Writer) ([]fileReport, error) {
	paths, err := findPOMs(root)
	if err != nil {
		return nil, err
	}
	reports := make([]fileReport, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			reports[i] = fileReport{Path: path, Diagnostics: []protocol.Diagnostic{}}
			diags, err := a.svc.DiagnoseFile(gctx, path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					reports[i].Error = err.Error()
					return nil
				}
				return err
			}
			reports[i].Diagnostics = diags
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, writeJSON(w, reports)
}

// watchAndCheck checks once, then again after every batch of POM changes,
// serving metrics and health until ctx is done.
func (a *app) watchAndCheck(ctx context.Context, root string, w io.Writer) error {
	if err := a.svc.Start(ctx); err != nil {
		slog.Warn("local repository watch failed", "error", err)
	}
	checker := health.NewChecker()
	checker.Register("local_repository", health.FromError(health.StatusDown, func(ctx context.Context) error {
		_, err := os.Stat(a.svc.Local().Root())
		return err
	}))
	checker.Register("remote_sources", func(ctx context.Context) health.ComponentHealth {
		if broken := a.svc.Searcher().BrokenSources(); len(broken) > 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "broken: " + strings.Join(broken, ", ")}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if a.redis != nil {
		checker.Register("redis", health.FromError(health.StatusDegraded, a.redis.Ping))
	}

	if a.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		checker.Mount(mux)
		shutdown := a.metrics.StartServer(a.cfg.Metrics.Port, mux, middleware.Metrics(a.metrics))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	watcher, err := watch.New(watch.Config{
		Root:     root,
		Debounce: a.cfg.LocalRepository.WatchDebounce,
		Match:    func(path string) bool { return filepath.Base(path) == "pom.xml" },
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}
	defer watcher.Stop()

	run := func() {
		if _, err := a.checkAll(ctx, root, w); err != nil && ctx.Err() == nil {
			slog.Error("check failed", "root", root, "error", err)
		}
	}
	run()
	for {
		select {
		case <-ctx.Done():
			slog.Info("check stopped")
			return nil
		case batch, ok := <-watcher.Batches():
			if !ok {
				return nil
			}
			slog.Info("pom files changed", "changes", len(batch))
			run()
		}
	}
}
