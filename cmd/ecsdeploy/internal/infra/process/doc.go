// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides abstractions for external process execution and
inter-process synchronization.

# Overview

This package contains two main components:

  - Manager: runs terraform, docker and docker-compose, with a mock for tests
  - Locker: file-based locking so two runs against the same working
    directory cannot interleave

# Manager

	pm := process.NewDefaultManager()
	out, err := pm.Run(ctx, "terraform", "terraform", "output", "-json")
	if err != nil {
	    var cmdErr *util.CommandError
	    if errors.As(err, &cmdErr) {
	        fmt.Println(cmdErr.Stderr)
	    }
	}

For testing, use MockManager and assert on the recorded command lines:

	mock := &process.MockManager{}
	// ... exercise code ...
	assert.Equal(t, []string{"terraform workspace select dev", "terraform init"}, mock.Lines())

# Locker

	cfg, _ := process.LockConfigFor("", terraformDir)
	lock := process.NewLock(cfg)
	if err := lock.Acquire(); err != nil {
	    return err
	}
	defer lock.Release()

# Thread Safety

  - Manager implementations are safe for concurrent use
  - Locker is NOT safe for concurrent use from multiple goroutines
*/
package process
