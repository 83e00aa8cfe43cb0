// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared command plumbing: engine construction from the
// effective config, time argument parsing, and error reporting.

package cli

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/auditcore/internal/config"
	"github.com/jeranaias/auditcore/internal/engine"
)

// Exit codes: 1 for operational failures, 2 for usage errors.
const (
	ExitError = 1
	ExitUsage = 2
)

// openEngine builds an engine from the effective configuration. Alerts
// and violations land in the configured alerts file and, unless quiet,
// on stderr.
func openEngine(args Args) (*engine.Engine, error) {
	cfg, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	var notifier engine.Notifier = engine.NewJSONLNotifier(cfg.Export.AlertsPath)
	if !args.Quiet && !args.JSON {
		notifier = engine.MultiNotifier{notifier, &engine.StderrNotifier{}}
	}
	return engine.Open(engine.Options{Config: cfg, Notifier: notifier})
}

// loadConfig resolves the effective configuration: --config wins, then
// the process-global default chain.
func loadConfig(args Args) (*config.Config, error) {
	if args.ConfigPath != "" {
		return config.LoadFromPath(args.ConfigPath)
	}
	return config.Global(), nil
}

// fail prints an error and exits with the operational failure code.
func fail(jsonMode bool, command string, err error) {
	if jsonMode {
		NewJSONErrorResponse(command, err).Print()
	} else {
		fmt.Fprintf(os.Stderr, "%s %v\n", renderIf(ErrorStyle, "Error:"), err)
	}
	os.Exit(ExitError)
}

// usageError prints a usage problem and exits with the usage code.
func usageError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(ExitUsage)
}

var relativeTimeRe = regexp.MustCompile(`^(\d+)([hdm])$`)

// parseTimeArg accepts RFC3339, YYYY-MM-DD, or a relative offset back
// from now (24h, 7d, 3m for months).
func parseTimeArg(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	if m := relativeTimeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time %q", s)
		}
		now := time.Now().UTC()
		switch m[2] {
		case "h":
			return now.Add(-time.Duration(n) * time.Hour), nil
		case "d":
			return now.AddDate(0, 0, -n), nil
		case "m":
			return now.AddDate(0, -n, 0), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339, YYYY-MM-DD, or relative (24h, 7d)", s)
}

// timeWindow resolves --from/--to options into a window, defaulting to
// the trailing 30 days.
func timeWindow(args Args) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -30)
	end := now

	if v := args.Option("from", ""); v != "" {
		t, err := parseTimeArg(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}
	if v := args.Option("to", ""); v != "" {
		t, err := parseTimeArg(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
	}
	return start, end, nil
}

// intOption parses a numeric option with a default.
func intOption(args Args, key string, def int) (int, error) {
	v := args.Option(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("--%s must be a number, got %q", key, v)
	}
	return n, nil
}

// mustWindow is timeWindow for handlers where a bad window is a usage
// error rather than a recoverable condition.
func mustWindow(args Args) (time.Time, time.Time) {
	start, end, err := timeWindow(args)
	if err != nil {
		usageError("%v", err)
	}
	return start, end
}

// mustInt is intOption with malformed values treated as usage errors.
func mustInt(args Args, key string, def int) int {
	n, err := intOption(args, key, def)
	if err != nil {
		usageError("%v", err)
	}
	return n
}

// csvOption splits a comma-separated option into trimmed values.
func csvOption(args Args, key string) []string {
	v := args.Option(key, "")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// printKV prints one label/value row in the shared style.
func printKV(label, value string) {
	fmt.Printf("%s %s\n", RenderLabel(label), renderIf(ValueStyle, value))
}
