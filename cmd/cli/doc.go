// Package cli assembles the tabmigrate root command. It layers the embedded defaults, an optional
// configuration file, and TABMIGRATE_ environment variables, builds the zap logger, and mounts the
// download, publish, and run migration commands.
package cli
