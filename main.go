// auditcore - tamper-evident audit trail and compliance engine.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/auditcore/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	var err error
	switch cmd {
	case cli.CmdSubmit:
		err = cli.HandleSubmit(args)
	case cli.CmdQuery:
		err = cli.HandleQuery(args)
	case cli.CmdGet:
		err = cli.HandleGet(args)
	case cli.CmdVerify:
		err = cli.HandleVerify(args)
	case cli.CmdReport:
		err = cli.HandleReport(args)
	case cli.CmdAnalyze:
		err = cli.HandleAnalyze(args)
	case cli.CmdAlerts:
		err = cli.HandleAlerts(args)
	case cli.CmdPolicy:
		err = cli.HandlePolicy(args)
	case cli.CmdRetention:
		err = cli.HandleRetention(args)
	case cli.CmdPurge:
		err = cli.HandlePurge(args)
	case cli.CmdKeys:
		err = cli.HandleKeys(args)
	case cli.CmdStatus:
		err = cli.HandleStatus(args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdServe:
		err = cli.HandleServe(args)
	case cli.CmdVersion:
		fmt.Printf("auditcore %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	case cli.CmdHelp:
		cli.Usage()
	}

	if err != nil {
		os.Exit(cli.ExitError)
	}
}
