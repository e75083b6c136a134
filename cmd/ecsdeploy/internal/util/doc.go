// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package util provides leaf utilities shared by the ecsdeploy internals.
//
// # Overview
//
//   - Command errors: [CommandError] carries the command line, exit code and
//     captured stderr of a failed subprocess.
//   - Ring buffer: [RingBuffer] keeps a bounded window of recent items.
//   - Line tail: [LineTail] is an io.Writer that remembers the last N lines
//     written to it, used to report the end of a failed docker build.
//
// Nothing in this package imports other ecsdeploy packages.
package util
