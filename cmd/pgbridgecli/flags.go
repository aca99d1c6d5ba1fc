package main

import "flag"

// Flags holds all command-line flags
type Flags struct {
	// Commands
	Sync   *bool
	Query  *string
	Exec   *string
	Ping   *bool
	Tables *bool

	// Options
	Config *string
	Params *string // Comma-separated positional parameters for -query/-exec

	// Config Creation
	CreateConfig *bool

	// Misc
	Version *bool
	Help    *bool
}

// ParseFlags defines and parses all command-line flags
func ParseFlags() *Flags {
	flags := &Flags{
		Sync:   flag.Bool("sync", false, "Run a full schema+data synchronization pass"),
		Query:  flag.String("query", "", "Execute a SELECT statement through the bridge"),
		Exec:   flag.String("exec", "", "Execute a DML/DDL statement through the bridge"),
		Ping:   flag.Bool("ping", false, "Test backend connectivity"),
		Tables: flag.Bool("tables", false, "List user tables of the embedded store"),

		Config: flag.String("config", "config.yaml", "Path to YAML configuration file"),
		Params: flag.String("params", "", "Comma-separated positional parameters for -query/-exec"),

		CreateConfig: flag.Bool("create-config", false, "Write a sample config.yaml and exit"),

		Version: flag.Bool("version", false, "Print version information"),
		Help:    flag.Bool("help", false, "Print help"),
	}

	flag.Parse()
	return flags
}
