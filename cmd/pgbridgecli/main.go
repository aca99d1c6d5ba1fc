package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/queuebridge/pgbridge/pkg/backend"
	"github.com/queuebridge/pgbridge/pkg/bridge"
	"github.com/queuebridge/pgbridge/pkg/catalog"
	"github.com/queuebridge/pgbridge/pkg/pool"
)

func main() {
	ctx := context.Background()

	// Parse flags
	flags := ParseFlags()

	// Handle version
	if *flags.Version {
		PrintVersion()
		os.Exit(0)
	}

	// Handle help
	if *flags.Help {
		PrintHelp()
		os.Exit(0)
	}

	// Handle config creation
	if *flags.CreateConfig {
		createConfigTemplate()
		return
	}

	// Load configuration
	config, err := LoadConfig(*flags.Config)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}

	acquireTimeout, err := ParseDuration(config.Backend.AcquireTimeout, pool.DefaultAcquireTimeout)
	if err != nil {
		fatal("Invalid acquire_timeout: %v", err)
	}
	execTimeout, err := ParseDuration(config.Backend.ExecTimeout, 0)
	if err != nil {
		fatal("Invalid exec_timeout: %v", err)
	}

	dsn := config.Backend.BuildDSN()

	// Construct the bridge
	b, err := bridge.New(bridge.Config{
		SQLiteDSN:      config.Embedded.Path,
		PostgresDSN:    dsn,
		PoolSize:       config.Backend.PoolSize,
		AcquireTimeout: acquireTimeout,
		ExecTimeout:    execTimeout,
		OwnSchema:      config.Sync.OwnSchema,
		StateFile:      config.Sync.StateFile,
		BatchSize:      config.Sync.BatchSize,
		Logf: func(format string, args ...any) {
			fmt.Printf("⚠ "+format+"\n", args...)
		},
	})
	if err != nil {
		fatal("Failed to create bridge: %v", err)
	}
	defer b.Close(ctx)

	// Route commands
	var cmdErr error
	switch {
	case *flags.Ping:
		cmdErr = runPing(ctx, b, dsn)
	case *flags.Tables:
		cmdErr = runTables(ctx, config.Embedded.Path)
	case *flags.Sync:
		cmdErr = runSync(ctx, b)
	case *flags.Query != "":
		cmdErr = runQuery(ctx, b, *flags.Query, parseParams(*flags.Params))
	case *flags.Exec != "":
		cmdErr = runExec(ctx, b, *flags.Exec, parseParams(*flags.Params))
	default:
		PrintHelp()
	}

	if cmdErr != nil {
		fatal("%v", cmdErr)
	}
}

func createConfigTemplate() {
	if err := SaveConfig("config.yaml", CreateSampleConfig()); err != nil {
		fatal("Failed to save config: %v", err)
	}

	fmt.Println("✓ Created sample config: config.yaml")
	fmt.Println("Edit the file with your database credentials and run:")
	fmt.Println("  pgbridgecli -sync -config config.yaml")
}

// parseParams splits the -params flag into positional parameters
func parseParams(raw string) []any {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	params := make([]any, len(parts))
	for i, p := range parts {
		params[i] = strings.TrimSpace(p)
	}
	return params
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// dsn is printed redacted only: the full string carries credentials
func runPing(ctx context.Context, b *bridge.Bridge, dsn string) error {
	fmt.Printf("Testing backend connection: %s\n", backend.RedactDSN(dsn))

	if !b.TestConnection(ctx) {
		return fmt.Errorf("backend is not reachable")
	}
	fmt.Println("✓ Backend connection OK")
	return nil
}

func runTables(ctx context.Context, embeddedPath string) error {
	// The catalog is read directly: listing tables does not need the backend
	fmt.Printf("Embedded store: %s\n", embeddedPath)

	cat, err := catalog.Open(embeddedPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	tables, err := cat.ListUserTables(ctx)
	if err != nil {
		return err
	}

	if len(tables) == 0 {
		fmt.Println("No user tables found")
		return nil
	}
	for _, t := range tables {
		fmt.Printf("  %s\n", t)
	}
	fmt.Printf("✓ %d table(s)\n", len(tables))
	return nil
}

func runSync(ctx context.Context, b *bridge.Bridge) error {
	fmt.Println("Starting synchronization pass...")

	report, err := b.Sync(ctx)
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	for _, t := range report.Tables {
		switch {
		case t.Err != nil:
			fmt.Printf("⚠ %s: skipped (%v)\n", t.Table, t.Err)
		case t.CopySkipped:
			fmt.Printf("✓ %s: schema ensured, data already copied\n", t.Table)
		default:
			fmt.Printf("✓ %s: %d row(s) copied\n", t.Table, t.RowsCopied)
		}
	}

	failed := report.Failed()
	fmt.Printf("✓ Pass complete: %d table(s), %d failed, took %s\n",
		len(report.Tables), len(failed), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return nil
}

func runQuery(ctx context.Context, b *bridge.Bridge, statement string, params []any) error {
	rows, err := b.Query(ctx, statement, params...)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return nil
	}

	fmt.Println(strings.Join(rows[0].Columns, " | "))
	for _, row := range rows {
		cells := make([]string, len(row.Values))
		for i, v := range row.Values {
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(cells, " | "))
	}
	fmt.Printf("✓ %d row(s)\n", len(rows))
	return nil
}

func runExec(ctx context.Context, b *bridge.Bridge, statement string, params []any) error {
	affected, err := b.Exec(ctx, statement, params...)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %d row(s) affected\n", affected)
	return nil
}
