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

import "golang.org/x/sys/unix"

// GetDefaultLoggingConfig returns the default configuration that is to be
// used during application startup, before the provided configuration has
// been parsed.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity: InfoLogSeverity,
		Format:   "text",
		LogRotate: LogRotateConfig{
			BackupFileCount: 10,
			Compress:        true,
			MaxFileSizeMb:   512,
		},
	}
}

// DefaultNFilesForHost reads the process's soft RLIMIT_NOFILE and uses it
// unchanged as a single simulated process's fd table size, the way
// fs.ChooseTempDirLimitNumFiles reads RLIMIT_NOFILE to size gcsfuse's own
// temp-file cache. Falls back to DefaultNFiles if the rlimit can't be read
// or is not in the range 1..4096.
func DefaultNFilesForHost() int {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return DefaultNFiles
	}
	n := int(rl.Cur)
	if n <= 0 || n > 4096 {
		return DefaultNFiles
	}
	return n
}
