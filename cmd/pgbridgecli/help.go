package main

import "fmt"

const version = "0.3.0"

// PrintVersion prints version information
func PrintVersion() {
	fmt.Printf("pgbridgecli version %s\n", version)
	fmt.Println("pgbridge - SQLite to PostgreSQL dialect bridge")
}

// PrintHelp prints help information
func PrintHelp() {
	fmt.Println("pgbridge CLI - run SQLite-dialect SQL against a PostgreSQL backend")
	fmt.Printf("Version: %s\n\n", version)

	fmt.Println("USAGE:")
	fmt.Println("  pgbridgecli [command] [options]")
	fmt.Println()

	fmt.Println("COMMANDS:")
	fmt.Println("    -sync                      Run a full schema+data synchronization pass")
	fmt.Println("    -query <sql>               Execute a SELECT (SQLite dialect) and print rows")
	fmt.Println("    -exec <sql>                Execute DML/DDL (SQLite dialect)")
	fmt.Println("    -tables                    List user tables of the embedded store")
	fmt.Println("    -ping                      Test backend connectivity")
	fmt.Println("    -create-config             Write a sample config.yaml and exit")
	fmt.Println()

	fmt.Println("OPTIONS:")
	fmt.Println("    -config <file>             Path to YAML config (default: config.yaml)")
	fmt.Println("    -params <v1,v2,...>        Positional parameters for -query/-exec")
	fmt.Println()

	fmt.Println("EXAMPLES:")
	fmt.Println("  pgbridgecli -create-config")
	fmt.Println("  pgbridgecli -sync -config config.yaml")
	fmt.Println("  pgbridgecli -query \"SELECT * FROM users WHERE id = ?\" -params 1")
	fmt.Println("  pgbridgecli -exec \"INSERT OR IGNORE INTO users (name) VALUES (?)\" -params alice")
}
