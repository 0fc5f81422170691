// Package utils holds the CLI plumbing shared by the tabmigrate commands: layered Viper
// configuration loading, zap logger construction, and command context metadata.
package utils
