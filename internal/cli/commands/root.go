// Copyright 2025 FDStore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fdstore/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit: %s)", version, commit)
	}
	return fmt.Sprintf("%s (%s, commit: %s)", version, date, commit)
}

var (
	flagDir          string
	flagMaxOpenFiles int
	flagConfig       string
	flagLogging      string
)

var rootCmd = &cobra.Command{
	Use:           "fdstore",
	Short:         "Bounded-FD random-access file store",
	Long:          "fdstore stores many logical files under one directory and serves\npositional reads and writes against them while keeping the number of\nopen file descriptors under a fixed budget.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "store directory (required unless set in config)")
	rootCmd.PersistentFlags().IntVar(&flagMaxOpenFiles, "max-open-files", 0, "file descriptor budget (default 128)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to fdstore.yaml")
	rootCmd.PersistentFlags().StringVar(&flagLogging, "logging", "", "log level: trace, debug, info, warn, off")
	rootCmd.Version = getVersionString()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds a logger for the given level, discarding output when
// logging is off.
func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	switch strings.ToLower(level) {
	case "trace":
		logger.SetLevel(logrus.TraceLevel)
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "", "off", "none":
		logger.SetOutput(io.Discard)
	default:
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// openStore resolves config file and flags (flags win) and opens the store.
func openStore() (*store.Store, error) {
	cfg, err := LoadFileConfig(flagConfig)
	if err != nil {
		return nil, err
	}

	dir := cfg.DirPath
	if flagDir != "" {
		dir = flagDir
	}
	maxOpen := cfg.MaxOpenFiles
	if flagMaxOpenFiles > 0 {
		maxOpen = flagMaxOpenFiles
	}
	logging := cfg.Logging
	if flagLogging != "" {
		logging = flagLogging
	}

	return store.New(store.Config{
		DirPath:      dir,
		MaxOpenFiles: maxOpen,
		Logger:       newLogger(logging),
	})
}
