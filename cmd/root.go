// Copyright 2024 Google Inc. All Rights Reserved.
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

package cmd

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/northernlights/weenix-go/cfg"
	"github.com/northernlights/weenix-go/internal/fd"
	"github.com/northernlights/weenix-go/internal/file"
	"github.com/northernlights/weenix-go/internal/kernel"
	"github.com/northernlights/weenix-go/internal/logger"
	"github.com/northernlights/weenix-go/internal/proc"
	"github.com/northernlights/weenix-go/internal/vfs"
)

// bootFunc boots a configured kernel core and returns init's exit status.
// Factored out of RunE so tests can substitute a fake without actually
// bringing up the scheduler.
type bootFunc func(cfg.Config) (int, error)

// NewRootCmd builds the weenix root command, binding flags and the YAML
// config file to a fresh cfg.Config each time it is invoked. boot is called
// once, after config validation, with the fully resolved configuration.
func NewRootCmd(boot bootFunc) (*cobra.Command, error) {
	var (
		cfgFile       string
		bindErr       error
		configFileErr error
		unmarshalErr  error
		bootConfig    = cfg.Config{Logging: cfg.GetDefaultLoggingConfig()}
	)

	// Config's fields are keyed by their yaml tags ("app-name",
	// "proc-max-count", ...), the same names BindFlags binds in viper.
	decodeByYAMLTag := func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }

	cmd := &cobra.Command{
		Use:   "weenix",
		Short: "Boot the Weenix kernel core and run it to completion",
		Long: `weenix boots a cooperative, single-CPU kernel core: a thread
scheduler, the process/thread lifecycle, and a small in-memory VFS, then
runs a single init workload to completion and halts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bindErr != nil {
				return bindErr
			}
			if configFileErr != nil {
				return configFileErr
			}
			if unmarshalErr != nil {
				return unmarshalErr
			}
			if err := cfg.ValidateConfig(&bootConfig); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			status, err := boot(bootConfig)
			if err != nil {
				return fmt.Errorf("kernel halted with an error: %w", err)
			}
			if status != 0 {
				return fmt.Errorf("init exited with status %d", status)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file")
	bindErr = cfg.BindFlags(cmd.PersistentFlags())

	cobra.OnInitialize(func() {
		if cfgFile == "" {
			unmarshalErr = viper.Unmarshal(&bootConfig, decodeByYAMLTag)
			return
		}

		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("reading config file: %w", err)
			return
		}
		unmarshalErr = viper.Unmarshal(&bootConfig, decodeByYAMLTag)
	})

	return cmd, bindErr
}

// bootAndLog boots the kernel core with initEntry as its init workload,
// initializing the logger from the resolved configuration first.
func bootAndLog(conf cfg.Config) (int, error) {
	if err := logger.InitLogFile(conf.Logging); err != nil {
		return 0, fmt.Errorf("initializing logger: %w", err)
	}
	logger.SetLogFormat(conf.Logging.Format)

	return kernel.Bootstrap(conf, initEntry)
}

// initEntry is the one workload this kernel core boots as pid 1: it
// exercises the VFS syscall surface (mkdir, open/write/read, stat) just
// enough to prove the boot sequence actually wired a working root
// filesystem, then returns. A real deployment would exec a user-supplied
// program here instead.
func initEntry(_, _ any) int {
	p := proc.Init()
	root := kernel.Root

	if err := fd.Mkdir(p, root, "/tmp"); err != nil {
		logger.Errorf("init: mkdir /tmp: %v", err)
		return 1
	}

	wfd, err := fd.Open(p, root, "/tmp/hello", file.OWrite|file.OCreate)
	if err != nil {
		logger.Errorf("init: open /tmp/hello: %v", err)
		return 1
	}
	if _, err := fd.Write(p, wfd, []byte("weenix\n")); err != nil {
		logger.Errorf("init: write /tmp/hello: %v", err)
		fd.Close(p, wfd)
		return 1
	}
	fd.Close(p, wfd)

	rfd, err := fd.Open(p, root, "/tmp/hello", file.ORead)
	if err != nil {
		logger.Errorf("init: re-open /tmp/hello: %v", err)
		return 1
	}
	buf := make([]byte, 64)
	n, err := fd.Read(p, rfd, buf)
	fd.Close(p, rfd)
	if err != nil {
		logger.Errorf("init: read /tmp/hello: %v", err)
		return 1
	}

	var st vfs.Stat
	if err := fd.Stat(p, root, "/tmp/hello", &st); err != nil {
		logger.Errorf("init: stat /tmp/hello: %v", err)
		return 1
	}

	logger.Infof("init: read back %q", string(buf[:n]))
	return 0
}

func Execute() {
	cmd, err := NewRootCmd(bootAndLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
