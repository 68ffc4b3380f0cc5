package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"media-migrator/internal/database"
	"media-migrator/internal/migration"
)

const (
	// Default timeout for database operations
	defaultTimeout = 30 * time.Second
	// Default database directory path
	defaultDatabaseDir = "/database"
)

var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	databaseDir := os.Getenv("DATABASE_DIR")
	if databaseDir == "" {
		databaseDir = defaultDatabaseDir
	}
	dbPath := filepath.Join(databaseDir, "migration.db")

	db, err := database.New(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
		os.Exit(1)
	}

	c := &cli{
		svc: migration.NewService(db, nil, nil),
		db:  db,
		out: os.Stdout,
		tty: term.IsTerminal(int(os.Stdout.Fd())),
	}
	code := c.run(ctx, os.Args[1:])

	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
	os.Exit(code)
}

type cli struct {
	svc *migration.Service
	db  *database.Database
	out io.Writer
	// tty selects aligned columns; otherwise output is tab-separated for
	// scripts.
	tty bool
}

// run executes one command and returns the process exit code.
func (c *cli) run(ctx context.Context, args []string) int {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var err error
	switch args[0] {
	case "status":
		err = c.status(ctx, args[1:])
	case "start":
		err = c.start(ctx, args[1:])
	case "pause":
		err = c.pause(ctx, args[1:])
	case "reset-errors":
		err = c.resetErrors(ctx, args[1:])
	case "reclaim":
		err = c.reclaim(ctx, args[1:])
	case "errors":
		err = c.recentErrors(ctx, args[1:])
	case "help", "-h", "--help":
		printUsage(c.out)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(args[0]))
		printUsage(os.Stderr)
		return 2
	}

	if errors.Is(err, errUsage) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		printUsage(os.Stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) status(ctx context.Context, args []string) error {
	tenants := args
	if len(tenants) == 0 {
		metas, err := c.db.ListMetas(ctx)
		if err != nil {
			return err
		}
		for _, m := range metas {
			tenants = append(tenants, m.TenantID)
		}
	}

	t := c.table("TENANT", "STATUS", "TOTAL", "DONE", "PENDING", "ERROR", "UNQUEUED", "UPDATED")
	for _, tenant := range tenants {
		snap, err := c.svc.Status(ctx, tenant)
		if err != nil {
			return fmt.Errorf("status for %s: %w", tenant, err)
		}
		t.snapshot(tenant, snap)
	}
	if len(args) == 0 && len(tenants) > 1 {
		snap, err := c.svc.Status(ctx, "")
		if err != nil {
			return err
		}
		t.snapshot("(all)", snap)
	}
	return t.flush()
}

func (c *cli) start(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var overrides database.RunConfig
	fs.IntVar(&overrides.BatchSize, "batch", 0, "items per batch")
	fs.IntVar(&overrides.Concurrency, "concurrency", 0, "items processed in parallel")
	fs.IntVar(&overrides.TargetQuality, "quality", 0, "JPEG quality 1-100")
	fs.IntVar(&overrides.MaxWidth, "max-width", 0, "maximum output width in pixels")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: start: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: start takes exactly one tenant", errUsage)
	}

	m, err := c.svc.Start(ctx, fs.Arg(0), overrides)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Tenant %s: %s (batch=%d concurrency=%d quality=%d maxWidth=%d, %d pending)\n",
		m.TenantID, m.Status, m.Config.BatchSize, m.Config.Concurrency, m.Config.TargetQuality, m.Config.MaxWidth, m.PendingPhotos)
	return nil
}

func (c *cli) pause(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: pause takes exactly one tenant", errUsage)
	}
	m, err := c.svc.Pause(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Tenant %s: %s\n", m.TenantID, m.Status)
	return nil
}

func (c *cli) resetErrors(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("%w: reset-errors takes at most one tenant", errUsage)
	}
	tenant := ""
	if len(args) == 1 {
		tenant = args[0]
	}
	n, err := c.svc.ResetErrors(ctx, tenant)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Requeued %d failed items\n", n)
	return nil
}

func (c *cli) reclaim(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: reclaim takes a duration, e.g. 30m", errUsage)
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return fmt.Errorf("%w: invalid duration %q", errUsage, args[0])
	}
	n, err := c.svc.ReclaimStale(ctx, d)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Reclaimed %d items stuck in processing for over %v\n", n, d)
	return nil
}

func (c *cli) recentErrors(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: errors takes a tenant and an optional limit", errUsage)
	}
	limit := 20
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: invalid limit %q", errUsage, args[1])
		}
		limit = n
	}

	logs, err := c.svc.RecentErrors(ctx, args[0], limit)
	if err != nil {
		return err
	}
	t := c.table("PHOTO", "AT", "ERROR")
	for _, l := range logs {
		t.row(l.PhotoID, l.ProcessedAt.Format(time.RFC3339), oneLine(l.ErrorMessage))
	}
	return t.flush()
}

// table writes aligned columns on a terminal and TSV otherwise.
type table struct {
	w     io.Writer
	flush func() error
}

func (c *cli) table(headers ...string) *table {
	if !c.tty {
		t := &table{w: c.out, flush: func() error { return nil }}
		t.row(headers...)
		return t
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	t := &table{w: tw, flush: tw.Flush}
	t.row(headers...)
	return t
}

func (t *table) row(cols ...string) {
	fmt.Fprintln(t.w, strings.Join(cols, "\t"))
}

func (t *table) snapshot(tenant string, s *database.StatusSnapshot) {
	updated := "-"
	if s.LastUpdatedAt != nil {
		updated = s.LastUpdatedAt.Format(time.RFC3339)
	}
	t.row(tenant, string(s.Status),
		strconv.FormatInt(s.TotalPhotos, 10),
		strconv.FormatInt(s.ProcessedPhotos, 10),
		strconv.FormatInt(s.PendingPhotos, 10),
		strconv.FormatInt(s.ErrorPhotos, 10),
		strconv.FormatInt(s.NeverQueued, 10),
		updated,
	)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sanitizeCommand returns a safe representation of a command string for display.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Media Migrator control")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: migrationctl <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  status [tenant...]                 - Show run status (all tenants by default)")
	fmt.Fprintln(w, "  start [flags] <tenant>             - Start or resume a run")
	fmt.Fprintln(w, "        -batch N -concurrency N -quality N -max-width N")
	fmt.Fprintln(w, "  pause <tenant>                     - Pause a run")
	fmt.Fprintln(w, "  reset-errors [tenant]              - Requeue failed items")
	fmt.Fprintln(w, "  reclaim <duration>                 - Requeue items stuck in processing")
	fmt.Fprintln(w, "  errors <tenant> [limit]            - Show recent failures")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  DATABASE_DIR - Path to database directory (default: %s)\n", defaultDatabaseDir)
}
