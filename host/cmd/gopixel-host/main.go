// Command gopixel-host drives WS281x strips, either directly from a Linux
// host or through gopixel firmware on a USB-attached microcontroller.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gopixel/core"
	"gopixel/host/config"
)

var (
	configPath string
	stripName  string
	verbose    bool
	jsonLogs   bool

	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "gopixel-host",
	Short:         "Drive WS2811/WS2812 strips",
	Long:          `Bit-bangs WS281x frames from a Linux host, or sends them to gopixel firmware over USB.`,
	Version:       core.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		if jsonLogs {
			log = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
			return
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Logger()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "strip definitions (.toml, .yaml)")
	pf.StringVarP(&stripName, "strip", "s", "", "named strip from --config")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&jsonLogs, "log-json", false, "log as JSON")
}

// loadFile reads --config, or returns an empty file when none was given.
func loadFile() (*config.File, error) {
	if configPath == "" {
		return &config.File{}, nil
	}
	f, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", configPath).Strs("strips", f.Names()).Msg("config loaded")
	return f, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
