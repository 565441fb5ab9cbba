package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/SisyphusSQ/binrepl/internal/config"
	"github.com/SisyphusSQ/binrepl/internal/log"
	"github.com/SisyphusSQ/binrepl/internal/metrics"
	"github.com/SisyphusSQ/binrepl/internal/vars"
)

var (
	c          = config.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   vars.AppName,
	Short: "MySQL binlog replication client",
	Long: fmt.Sprintf("%s streams binlog events from a MySQL server as a replica, or reads local binlog files,\n"+
		"and turns row events into redo sql, rollback sql, json lines or transaction statistics.", vars.AppName),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd.Flags()); err != nil {
			return err
		}
		if err := log.Init(c.LogLevel, c.LogJSON); err != nil {
			return fmt.Errorf("%w: %w", vars.InvalidOption, err)
		}
		if c.MetricsAddr != "" {
			serveMetrics(c.MetricsAddr)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Option missed! Use %s -h or --help for details.\n", vars.AppName)
	},
}

func serveMetrics(addr string) {
	metrics.Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		log.Logger.Info("serve metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Logger.Error("metrics server stopped: %v", err)
		}
	}()
}

func initAll() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "toml file holding any option below, command line flags take precedence")
	rootCmd.PersistentFlags().StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level, one of debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&c.LogJSON, "log-json", false, "log in json instead of text")
	rootCmd.PersistentFlags().StringVar(&c.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, such as :9104. default off")

	initVersion()
	initRun()
}

func Execute() {
	initAll()
	if err := rootCmd.Execute(); err != nil {
		log.Logger.Error("%s execute got err: %v", vars.AppName, err)
		os.Exit(1)
	}
}
