package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/baronrustamov/bloomsync/internal/filter/common/clock"
	"github.com/baronrustamov/bloomsync/internal/filter/common/log"
	"github.com/baronrustamov/bloomsync/internal/filter/config"
	"github.com/baronrustamov/bloomsync/internal/filter/gateways/fetch"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/checksum"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/journal"
	"github.com/baronrustamov/bloomsync/internal/filter/repos/registry"
	"github.com/baronrustamov/bloomsync/internal/filter/services/filters"
	"github.com/baronrustamov/bloomsync/internal/filter/services/pipeline"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "bloomsyncd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the filter daemon
type Application struct {
	config   *config.AppConfig
	manager  *filters.Manager
	verifier *checksum.Verifier
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":       version,
		"env":           cfg.Env,
		"log_level":     cfg.LogLevel,
		"cache_dir":     cfg.CacheDir,
		"sources":       cfg.Sources,
		"fetch_timeout": cfg.FetchTimeout,
	}, "Starting "+appName)

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()

	sources, err := registry.Load(cfg.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to load filter sources: %w", err)
	}
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name)
	}
	log.Info(map[string]any{"sources": cfg.Sources, "filters": names}, "Filter sources loaded")

	verifier, err := checksum.NewVerifier(cfg.DigestCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create checksum verifier: %w", err)
	}

	fetcher := fetch.New(fetch.Options{
		Timeout: cfg.FetchTimeout,
		Policy: fetch.NetworkPolicy{
			AllowExpensive:      cfg.AllowExpensive,
			AllowConstrained:    cfg.AllowConstrained,
			WaitForConnectivity: cfg.WaitForConnectivity,
		},
	})

	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync journal: %w", err)
	}
	log.Info(map[string]any{"path": cfg.Journal, "entries": store.Len()}, "Sync journal opened")

	manager, err := filters.NewManager(filters.Options{
		Sources:     sources,
		CacheDir:    cfg.CacheDir,
		Syncer:      pipeline.New(fetcher, verifier, logger),
		Journal:     store,
		Clock:       clock.RealClock{},
		Logger:      logger,
		RetryFailed: cfg.RetryFailed,
	})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to build filter manager: %w", err), store.Close())
	}

	return &Application{config: cfg, manager: manager, verifier: verifier}, nil
}

// Run warms every filter in the background and answers queries read from in
// until in is exhausted or ctx is cancelled. Each query line is
// "<filter> <key>" and is answered with "true" or "false". Lines starting
// with '.' are control commands: ".status", ".journal <filter>", ".stats",
// ".reset <filter>", ".clear".
func (app *Application) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	go app.warm(ctx)

	lines := make(chan string)
	// readErr always receives exactly one value before lines is closed.
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				readErr <- nil
				return
			}
		}
		readErr <- sc.Err()
	}()

	w := bufio.NewWriter(out)
	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			log.Info(nil, "Shutdown initiated")
			break loop
		case line, ok := <-lines:
			if !ok {
				runErr = <-readErr
				break loop
			}
			if resp, ok := app.handle(line); ok {
				fmt.Fprintln(w, resp)
				if err := w.Flush(); err != nil {
					runErr = err
					break loop
				}
			}
		}
	}

	return multierr.Append(runErr, app.shutdown())
}

func (app *Application) warm(ctx context.Context) {
	states, err := app.manager.LoadAll(ctx)
	if err != nil {
		log.Warn(map[string]any{"error": err}, "Filter warm-up incomplete")
	}
	ready := 0
	for _, st := range states {
		if st.Filter != nil {
			ready++
		}
	}
	stats := app.verifier.Stats()
	log.Info(map[string]any{
		"ready":         ready,
		"total":         len(states),
		"digest_hits":   stats.Hits,
		"digest_misses": stats.Misses,
	}, "Filter warm-up finished")
}

// handle answers one input line. Blank lines get no response.
func (app *Application) handle(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}

	if strings.HasPrefix(fields[0], ".") {
		return app.command(fields[0], fields[1:]), true
	}
	if len(fields) != 2 {
		return "error: expected <filter> <key>", true
	}
	return fmt.Sprint(app.manager.Contains(fields[0], fields[1])), true
}

func (app *Application) command(cmd string, args []string) string {
	switch {
	case cmd == ".status" && len(args) == 0:
		parts := make([]string, 0)
		for _, name := range app.manager.Names() {
			st, _ := app.manager.Status(name)
			parts = append(parts, name+"="+st.Kind.String())
		}
		return strings.Join(parts, " ")
	case cmd == ".journal" && len(args) == 1:
		e, ok, err := app.manager.LastSync(args[0])
		switch {
		case err != nil:
			return "error: " + err.Error()
		case !ok:
			return "none"
		}
		line := fmt.Sprintf("outcome=%s run=%s updated=%s", e.Outcome, e.RunID,
			time.Unix(e.UpdatedUnix, 0).UTC().Format(time.RFC3339))
		if e.SHA256 != "" {
			line += " sha256=" + e.SHA256
		}
		if e.NumBits > 0 {
			line += fmt.Sprintf(" bits=%d", e.NumBits)
		}
		if e.Error != "" {
			line += fmt.Sprintf(" error=%q", e.Error)
		}
		return line
	case cmd == ".stats" && len(args) == 0:
		st := app.verifier.Stats()
		return fmt.Sprintf("digest_cache entries=%d capacity=%d hits=%d misses=%d evictions=%d",
			st.Entries, st.Capacity, st.Hits, st.Misses, st.Evictions)
	case cmd == ".reset" && len(args) == 1:
		return fmt.Sprint(app.manager.Reset(args[0]))
	case cmd == ".clear" && len(args) == 0:
		app.verifier.Purge()
		if err := app.manager.Clear(); err != nil {
			return "error: " + err.Error()
		}
		return "ok"
	default:
		return "error: unknown command " + cmd
	}
}

// shutdown closes the manager, bounded by defaultShutdownTimeout.
func (app *Application) shutdown() error {
	done := make(chan error, 1)
	go func() { done <- app.manager.Close() }()

	select {
	case err := <-done:
		log.Info(nil, "Graceful shutdown completed")
		return err
	case <-time.After(defaultShutdownTimeout):
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
