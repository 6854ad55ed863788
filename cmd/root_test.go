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
	"os"
	"path/filepath"
	"testing"

	"github.com/northernlights/weenix-go/cfg"
)

func TestNewRootCmdDefaultsAreValid(t *testing.T) {
	var got cfg.Config
	cmd, err := NewRootCmd(func(c cfg.Config) (int, error) {
		got = c
		return 0, nil
	})
	if err != nil {
		t.Fatalf("NewRootCmd: %v", err)
	}
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.AppName != "weenix" {
		t.Fatalf("AppName = %q, want %q", got.AppName, "weenix")
	}
	if got.Kernel.ProcMaxCount != cfg.DefaultProcMaxCount {
		t.Fatalf("Kernel.ProcMaxCount = %d, want %d", got.Kernel.ProcMaxCount, cfg.DefaultProcMaxCount)
	}
}

func TestNewRootCmdRejectsExtraArgs(t *testing.T) {
	cmd, err := NewRootCmd(func(cfg.Config) (int, error) { return 0, nil })
	if err != nil {
		t.Fatalf("NewRootCmd: %v", err)
	}
	cmd.SetArgs([]string{"unexpected"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("Execute with an extra positional arg: want error, got nil")
	}
}

func TestNewRootCmdSurfacesBootError(t *testing.T) {
	cmd, err := NewRootCmd(func(cfg.Config) (int, error) {
		return 5, nil
	})
	if err != nil {
		t.Fatalf("NewRootCmd: %v", err)
	}
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err == nil {
		t.Fatal("Execute with a nonzero boot status: want error, got nil")
	}
}

func TestNewRootCmdReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weenix.yaml")
	if err := os.WriteFile(path, []byte("app-name: custom\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var got cfg.Config
	cmd, err := NewRootCmd(func(c cfg.Config) (int, error) {
		got = c
		return 0, nil
	})
	if err != nil {
		t.Fatalf("NewRootCmd: %v", err)
	}
	cmd.SetArgs([]string{"--config-file=" + path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.AppName != "custom" {
		t.Fatalf("AppName = %q, want %q", got.AppName, "custom")
	}
}

func TestNewRootCmdMissingConfigFileIsAnError(t *testing.T) {
	cmd, err := NewRootCmd(func(cfg.Config) (int, error) { return 0, nil })
	if err != nil {
		t.Fatalf("NewRootCmd: %v", err)
	}
	cmd.SetArgs([]string{"--config-file=/does/not/exist.yaml"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("Execute with a missing config file: want error, got nil")
	}
}
