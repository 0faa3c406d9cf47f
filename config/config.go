// Package config loads the configuration of arbor from the environment and an
// optional .env file in the profile directory.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goenv "go-simpler.org/env"

	"arbor.lol/appdata"
	"arbor.lol/chk"
	"arbor.lol/config/keyvalue"
	"arbor.lol/env"
)

// C is the configuration of arbor. Environment variables override the .env
// file, which overrides the defaults.
type C struct {
	AppName           string   `env:"APP_NAME" default:"arbor"`
	Profile           string   `env:"PROFILE" usage:"root path for all other path configurations (based on APP_NAME and OS specific location)"`
	DataDir           string   `env:"DATA_DIR" usage:"database directory, PROFILE/db if unset"`
	InMemory          bool     `env:"IN_MEMORY" default:"false" usage:"keep the database in memory, nothing is written to disk"`
	LogLevel          string   `env:"LOG_LEVEL" default:"info" usage:"debug level: fatal error warn info debug trace"`
	DbLogLevel        string   `env:"DB_LOG_LEVEL" default:"warn" usage:"debug level: fatal error warn info debug trace"`
	BlockCacheSize    int      `env:"BLOCK_CACHE_SIZE" default:"268435456" usage:"badger block cache size in bytes"`
	Compression       string   `env:"COMPRESSION" default:"none" usage:"compress the database, [none|snappy|zstd]"`
	SequenceBandwidth int      `env:"SEQUENCE_BANDWIDTH" default:"1000" usage:"number of record keys leased from the database at a time"`
	MaxDepth          int      `env:"MAX_DEPTH" default:"0" usage:"refuse tree inserts deeper than this, 0 is unlimited"`
	Kinds             []string `env:"KINDS" usage:"comma separated tree kinds to register at startup"`
	RequireBase       bool     `env:"REQUIRE_BASE_ATTRIBUTE" default:"false" usage:"refuse to customise an attribute at a layer unless it has a base value"`
	RedisAddr         string   `env:"REDIS_ADDR" usage:"use the redis server at this address instead of the embedded database"`
	Pprof             bool     `env:"PPROF" default:"false" usage:"write a cpu profile to PROFILE/pprof"`
	MemLimit          int64    `env:"MEMLIMIT" default:"0" usage:"soft memory limit in bytes, 0 leaves the runtime default"`
}

// New loads the configuration. The profile directory is derived from the app
// name if it is not set, and a .env file found in it is applied on top of the
// defaults, below the process environment.
func New() (cfg *C, err error) {
	cfg = &C{}
	if err = goenv.Load(cfg, &goenv.Options{SliceSep: ","}); chk.T(err) {
		return
	}
	if cfg.Profile == "" {
		cfg.Profile = appdata.Dir(cfg.AppName)
	}
	envPath := filepath.Join(cfg.Profile, ".env")
	if _, serr := os.Stat(envPath); serr == nil {
		var e env.Env
		if e, err = env.GetEnv(envPath); chk.T(err) {
			return
		}
		if err = goenv.Load(cfg, &goenv.Options{Source: overlay{e}, SliceSep: ","}); chk.E(err) {
			return
		}
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.Profile, "db")
	}
	return
}

// overlay looks up the process environment first and the .env file second.
type overlay struct{ file env.Env }

func (o overlay) LookupEnv(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	return o.file.LookupEnv(key)
}

// Path is the database directory, or "" when the database is in memory.
func (cfg *C) Path() string {
	if cfg.InMemory {
		return ""
	}
	return cfg.DataDir
}

// HelpRequested returns true if any of the common types of help invocation are
// found as the first command line parameter/flag.
func HelpRequested() (help bool) {
	if len(os.Args) > 1 {
		switch strings.ToLower(os.Args[1]) {
		case "help", "-h", "--h", "-help", "--help", "?":
			help = true
		}
	}
	return
}

// GetEnv returns true if the first command line parameter asks for the
// configuration to be printed as environment variables.
func GetEnv() (requested bool) {
	if len(os.Args) > 1 {
		switch strings.ToLower(os.Args[1]) {
		case "env":
			requested = true
		}
	}
	return
}

// EnvKV returns the configuration as sorted key/value pairs.
func EnvKV(cfg *C) keyvalue.KVSlice { return keyvalue.EnvKV(*cfg) }

// PrintEnv renders the configuration as a .env file.
func PrintEnv(cfg *C, printer io.Writer) { keyvalue.PrintEnv(*cfg, printer) }

// PrintHelp outputs a help text listing the configuration options and default
// values to a provided io.Writer (usually os.Stderr or os.Stdout).
func PrintHelp(cfg *C, printer io.Writer) {
	_, _ = fmt.Fprintf(printer,
		"Environment variables that configure %s:\n\n", cfg.AppName)
	goenv.Usage(cfg, printer, &goenv.Options{SliceSep: ","})
	_, _ = fmt.Fprintf(printer,
		"\n.env file found at the PROFILE path will be automatically loaded for "+
			"configuration.\nthe environment overrides it and you can also edit the "+
			"file to set configuration options\n\n"+
			"use the parameter 'env' to print out the current configuration to the terminal\n\n"+
			"set the environment using\n\n\t%s env>%s/.env\n\n", os.Args[0], cfg.Profile)
}
