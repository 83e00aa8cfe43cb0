// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command routing for auditcore.

package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdSubmit Command = iota
	CmdQuery
	CmdGet
	CmdVerify
	CmdReport
	CmdAnalyze
	CmdAlerts
	CmdPolicy
	CmdRetention
	CmdPurge
	CmdKeys
	CmdStatus
	CmdConfig
	CmdServe
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool   // Output in JSON format
	ConfigPath string // --config override
	Confirm    bool   // Destructive operations require --confirm

	// Command-specific
	Subcommand string

	// Raw args (remaining after flag parsing)
	Raw []string

	// Options holds command-specific named options (e.g., --from, --actor)
	Options map[string]string
}

const usageText = `auditcore - tamper-evident audit trail and compliance engine

Auditcore records signed, immutable audit events, ages them through
hot/warm/cold storage tiers, and answers compliance and anomaly
questions about them.

Usage:
  auditcore submit              Submit one event (flags or JSON on stdin)
  auditcore query               Query events across all tiers
  auditcore get <id>            Fetch one event by id
  auditcore verify [subcommand] Integrity verification
  auditcore report [subcommand] Compliance reports
  auditcore analyze             Analytics over a time window
  auditcore alerts [subcommand] Anomaly alert management
  auditcore policy [subcommand] Retention policy management
  auditcore retention [run|preview] Retention cycles
  auditcore purge --confirm     Purge disposal-eligible events
  auditcore keys [show|rotate]  Signing key management
  auditcore status              Store statistics and key info
  auditcore config [show|init]  Configuration
  auditcore serve               Run scheduler and archive watch in the foreground
  auditcore version             Show version
  auditcore help                Show this help

Global Flags:
  --config PATH     Use a specific config file
  --json            Output in JSON format
  -q, --quiet       Suppress non-essential output
  -v, --verbose     Verbose output
  --confirm         Confirm a destructive operation

Submit Flags:
  auditcore submit --actor ID --action TYPE --resource RES [--result success|failure|denied]
    --actor-type user|system|service   Actor type (default: user)
    --ip ADDR                          Actor source IP
    --resource-id ID                   Specific resource instance
    --env ENV --app APP                Request context (defaults: production, auditcore)
    --meta KEY=VALUE                   Metadata entry (repeatable)
    --stdin                            Read one event or an array as JSON from stdin

Query Flags:
  auditcore query [--actor ID] [--resource RES] [--from TIME] [--to TIME]
    --tier hot|warm|cold               Restrict to one tier
    --limit N --offset N               Paging
  Times are RFC3339, YYYY-MM-DD, or relative (24h, 7d, 30d).

Verify Commands:
  auditcore verify                 Verify everything (chain, archives, events)
  auditcore verify chain           Recompute every shard seal chain
  auditcore verify archives        Reconcile warm/cold blobs against the catalog
  auditcore verify shard <shard>   Verify one UTC-hour shard (2025-03-14T09)
  auditcore verify events [--from TIME] [--to TIME]
                                   Build a signed integrity report

Report Commands:
  auditcore report generate <soc2|gdpr|hipaa|pci-dss|custom> --from TIME --to TIME
    --by NAME                        Who requested the report
  auditcore report list [--type T] [--limit N]
  auditcore report show <id>
  auditcore report verify <id>     Check a stored report's signature
  auditcore report violations <type> --from TIME --to TIME

Alert Commands:
  auditcore alerts                 List open alerts
    --all                          Include acknowledged alerts
    --limit N
  auditcore alerts ack <id>        Acknowledge an alert

Policy Commands:
  auditcore policy list [--all]
  auditcore policy show <id>
  auditcore policy create --name NAME --hot-days N --warm-days N --cold-years N
    --resource-types CSV --actor-types CSV --critical-only
  auditcore policy update <id> [same flags; absent flags keep current values]
  auditcore policy enable <id> / disable <id>
  auditcore policy delete <id> --confirm

Retention Commands:
  auditcore retention run          Run one retention cycle now
  auditcore retention preview      Show what a cycle would move, moving nothing
  auditcore purge --confirm        Permanently remove disposal-eligible events

Key Commands:
  auditcore keys                   Show active key and verification keys
  auditcore keys rotate            Generate and activate a fresh signing key

Environment:
  AUDITCORE_SIGNING_KEY            Hex signing key (overrides config)
  AUDITCORE_SIGNING_KEY_FILE       Path to a raw 32-byte key file
  AUDITCORE_DATA_DIR               Data directory (default ~/.auditcore)
`

// Usage prints the usage text.
func Usage() {
	fmt.Print(usageText)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return parseArgs(os.Args[1:])
}

// parseArgs is Parse over an explicit argv, for tests.
func parseArgs(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdHelp, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		parsedArgs.Subcommand = remaining[0]
	}

	switch cmd {
	case "submit", "ingest":
		return CmdSubmit, parsedArgs

	case "query", "q", "search":
		return CmdQuery, parsedArgs

	case "get", "show":
		return CmdGet, parsedArgs

	case "verify", "integrity":
		return CmdVerify, parsedArgs

	case "report", "reports", "compliance":
		return CmdReport, parsedArgs

	case "analyze", "analytics":
		return CmdAnalyze, parsedArgs

	case "alerts", "alert":
		return CmdAlerts, parsedArgs

	case "policy", "policies":
		return CmdPolicy, parsedArgs

	case "retention":
		return CmdRetention, parsedArgs

	case "purge":
		return CmdPurge, parsedArgs

	case "keys", "key":
		return CmdKeys, parsedArgs

	case "status", "s", "stats":
		return CmdStatus, parsedArgs

	case "config":
		return CmdConfig, parsedArgs

	case "serve", "daemon":
		return CmdServe, parsedArgs

	case "version", "--version", "-V":
		return CmdVersion, parsedArgs

	case "help", "--help", "-h":
		return CmdHelp, parsedArgs

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags splits global flags from positional arguments. Named
// options (--key value or --key=value) land in Options; bare positionals
// stay in order.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	parsedArgs := Args{
		Options: make(map[string]string),
	}

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--confirm":
			parsedArgs.Confirm = true
		case "--config":
			if i+1 < len(args) {
				i++
				parsedArgs.ConfigPath = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--config="):
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--") && strings.Contains(arg, "="):
				kv := strings.SplitN(strings.TrimPrefix(arg, "--"), "=", 2)
				parsedArgs.setOption(kv[0], kv[1])
			case strings.HasPrefix(arg, "--"):
				key := strings.TrimPrefix(arg, "--")
				if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
					i++
					parsedArgs.setOption(key, args[i])
				} else {
					parsedArgs.Options[key] = "true"
				}
			default:
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, parsedArgs
}

// setOption records an option; --meta repeats, accumulating with \n.
func (a *Args) setOption(key, value string) {
	if key == "meta" {
		if prev, ok := a.Options[key]; ok {
			a.Options[key] = prev + "\n" + value
			return
		}
	}
	a.Options[key] = value
}

// Option returns a named option value, or the default.
func (a *Args) Option(key, def string) string {
	if v, ok := a.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// HasOption reports whether the option was supplied at all.
func (a *Args) HasOption(key string) bool {
	_, ok := a.Options[key]
	return ok
}
