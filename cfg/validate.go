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

package cfg

import "fmt"

func isValidLogRotateConfig(config *LogRotateConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be at least 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (retain all backups) or positive")
	}
	return nil
}

func isValidKernelConfig(k *KernelConfig) error {
	if k.NFiles <= 0 {
		return fmt.Errorf("nfiles must be positive")
	}
	if k.ProcMaxCount <= 0 {
		return fmt.Errorf("proc-max-count must be positive")
	}
	if k.MaxPathLen <= 0 {
		return fmt.Errorf("max-path-len must be positive")
	}
	if k.NameLen <= 0 || k.NameLen > k.MaxPathLen {
		return fmt.Errorf("name-len must be positive and no greater than max-path-len")
	}
	if k.DefaultStackSize <= 0 {
		return fmt.Errorf("default-stack-size must be positive")
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	if err := isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}
	if err := isValidKernelConfig(&config.Kernel); err != nil {
		return fmt.Errorf("error parsing kernel config: %w", err)
	}
	if config.Debug.InvariantPolicy == "" {
		config.Debug.InvariantPolicy = InvariantPanic
	}
	return nil
}
