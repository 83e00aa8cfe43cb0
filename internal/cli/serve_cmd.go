// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve_cmd.go - Foreground daemon: scheduled retention and analytics
// rollups plus the archive directory watcher, until SIGINT/SIGTERM.

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/auditcore/internal/engine"
)

// HandleServe handles the serve command.
func HandleServe(args Args) error {
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "serve", err)
	}
	defer eng.Close()

	sched := engine.NewScheduler(eng)
	sched.Start()
	defer sched.Stop()

	watcher, err := engine.NewArchiveWatcher(eng, 0)
	if err != nil {
		fail(args.JSON, "serve", err)
	}
	defer watcher.Close()
	if err := watcher.Watch(); err != nil {
		fail(args.JSON, "serve", err)
	}

	if !args.Quiet {
		fmt.Printf("%s auditcore serving (pid %d); watching archive tiers, press Ctrl-C to stop\n",
			RenderStatus("ok"), os.Getpid())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	if !args.Quiet {
		fmt.Printf("\n%s received %s at %s, shutting down\n",
			RenderStatus("ok"), s, time.Now().Format(time.RFC3339))
	}
	return nil
}
