package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/ledgercache/ledgercache/config"
	"github.com/ledgercache/ledgercache/log"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals
var (
	configPath string
	apiHost    string
	apiPort    uint16
	cfg        *config.Config
)

const (
	defaultConfigPath = "./config.yml"
	configFileEnvVar  = "LEDGERCACHE_CONFIG_FILE"

	defaultHost = "localhost"
	// 0 takes the port from the api.addr setting
	defaultPort = 0
)

// NewRootCommand creates new root command instance
func NewRootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "ledgercache",
		Short: "ledgercache is a concurrent in-memory key/value cache",
		Long: `A concurrent in-memory key/value cache with per-entry TTL
and a soft capacity, served over a REST API.

Without a sub command the server is started.`,
		PersistentPreRunE: initConfigPreRun,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd, args)
		},
	}

	c.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	c.PersistentFlags().StringVar(&apiHost, "apiHost", defaultHost, "host of ledgercache (API)")
	c.PersistentFlags().Uint16Var(&apiPort, "apiPort", defaultPort, "port of ledgercache (API)")

	c.AddCommand(
		newServeCommand(),
		NewVersionCommand(),
		NewValidateCommand(),
		newEntryCommands(),
		newCacheCommand(),
		newBenchCommand(),
	)

	return c
}

func apiURL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(apiHost, strconv.Itoa(int(apiPort))))
}

func initConfigPreRun(_ *cobra.Command, _ []string) error {
	return initConfig()
}

// initConfig loads the configuration. A missing file at the default path yields the defaults.
func initConfig() error {
	resolveConfigPath()

	path := configPath

	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	loaded, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}

	cfg = loaded

	log.ConfigureLogger(cfg.Log)

	if apiPort == defaultPort && cfg.API.Addr != "" {
		return applyAPIAddr(cfg.API.Addr)
	}

	return nil
}

// resolveConfigPath takes the path from the environment unless it was passed explicitly
func resolveConfigPath() {
	if configPath == defaultConfigPath {
		if val, present := os.LookupEnv(configFileEnvVar); present {
			configPath = val
		}
	}
}

// applyAPIAddr derives the client target from the listen address of the server
func applyAPIAddr(addr string) error {
	host, port, err := net.SplitHostPort(getAddress(addr))
	if err != nil {
		return fmt.Errorf("can't parse api address '%s': %w", addr, err)
	}

	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return fmt.Errorf("can't convert port '%s' to number: %w", port, err)
	}

	apiPort = uint16(p)

	// wildcard listen addresses are reachable on localhost
	if host != "" && host != "0.0.0.0" && host != "::" {
		apiHost = host
	}

	return nil
}

func getAddress(addr string) string {
	if _, err := strconv.Atoi(addr); err == nil {
		return ":" + addr
	}

	return addr
}

// Execute starts the command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
