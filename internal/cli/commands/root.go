// Copyright 2024 C4GHFS Authors
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
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"c4ghfs/internal/config"
	"c4ghfs/internal/vfs"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Persistent flags
var (
	configPath string
	logLevel   string
	rootDir    string
)

// settings is loaded once per invocation by PersistentPreRunE
var settings *config.Settings

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		// Dev build: include epoch and commit for troubleshooting
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var rootCmd = &cobra.Command{
	Use:   "c4ghfs",
	Short: "Browse Crypt4GH containers as their plaintext files",
	Long: `Presents a directory of Crypt4GH containers the way the c4ghfs overlay
mounts it: encrypted files lose their suffix and report plaintext sizes,
permissions are restricted to the owner.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "init" {
			return nil
		}

		var err error
		if configPath != "" {
			settings, err = config.Load(configPath)
		} else {
			settings, err = config.LoadDefault()
		}
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}

		if logLevel != "" {
			settings.LogLevel = logLevel
		}
		if rootDir != "" {
			settings.RootDir = rootDir
		}
		configureLogging(settings.NormalizedLogLevel(), cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("c4ghfs version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (.yaml, or crypt4ghfs .conf)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, off")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "directory holding the containers (overrides rootdir)")

	log.SetOutput(io.Discard)
}

// configureLogging applies a settings log level. Unknown levels log at
// debug; "off" discards everything.
func configureLogging(level string, out io.Writer) {
	if level == "off" {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(out)
	switch level {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.DebugLevel)
	}
}

// openTable opens the configured root as a VFS table
func openTable() (*vfs.Table, error) {
	root := settings.Root()
	if root == "" {
		return nil, fmt.Errorf("no root directory configured (set rootdir or pass --root)")
	}
	opts, err := settings.TableOptions()
	if err != nil {
		return nil, err
	}
	table, err := vfs.OpenTable(root, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", root, err)
	}
	return table, nil
}

// closeTable closes t, logging instead of failing the command
func closeTable(t *vfs.Table) {
	if n, err := t.Close(); err != nil {
		log.Warnf("[CLI] closing table (%d entries): %v", n, err)
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
