// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// analyze_cmd.go - Anomaly analytics: window rollups and the alert queue.

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/auditcore/internal/analytics"
)

// HandleAnalyze handles the analyze command.
func HandleAnalyze(args Args) error {
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "analyze", err)
	}
	defer eng.Close()

	start, end := mustWindow(args)
	return OutputJSON(args.JSON, "analyze", func() (interface{}, error) {
		report, err := eng.Analytics(context.Background(), start, end)
		if err != nil {
			if !args.JSON {
				fail(false, "analyze", err)
			}
			return nil, err
		}
		if !args.JSON {
			printAnalytics(report, args.Verbose)
		}
		return report, nil
	})
}

// HandleAlerts handles the alerts command.
func HandleAlerts(args Args) error {
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "alerts", err)
	}
	defer eng.Close()
	ctx := context.Background()

	switch args.Subcommand {
	case "", "list", "ls":
		openOnly := !args.HasOption("all")
		return OutputJSON(args.JSON, "alerts", func() (interface{}, error) {
			alerts, err := eng.Alerts(ctx, openOnly, mustInt(args, "limit", 50))
			if err != nil {
				if !args.JSON {
					fail(false, "alerts", err)
				}
				return nil, err
			}
			if !args.JSON {
				if len(alerts) == 0 {
					fmt.Println(renderIf(DimStyle, "no alerts"))
				}
				for _, a := range alerts {
					state := renderIf(WarningStyle, "open")
					if a.Acknowledged {
						state = renderIf(DimStyle, "ack")
					}
					fmt.Printf("%s  %-8s  score=%-3d  %s  [%s]\n",
						a.ID, a.Severity, a.Score,
						a.CreatedAt.Format(time.RFC3339), state)
					if args.Verbose {
						for _, r := range a.Reasons {
							fmt.Printf("    - %s\n", r)
						}
					}
				}
			}
			return map[string]interface{}{"alerts": alerts, "count": len(alerts)}, nil
		})
	case "ack", "acknowledge":
		if len(args.Raw) < 2 {
			usageError("Usage: auditcore alerts ack <id>")
		}
		id := args.Raw[1]
		return OutputJSON(args.JSON, "alerts ack", func() (interface{}, error) {
			if err := eng.AcknowledgeAlert(ctx, id); err != nil {
				if !args.JSON {
					fail(false, "alerts ack", err)
				}
				return nil, err
			}
			if !args.JSON {
				fmt.Printf("%s alert %s acknowledged\n", RenderStatus("ok"), id)
			}
			return map[string]interface{}{"id": id, "acknowledged": true}, nil
		})
	default:
		usageError("Unknown alerts subcommand: %s", args.Subcommand)
		return nil
	}
}

func printAnalytics(r *analytics.Report, verbose bool) {
	fmt.Println(renderIf(TitleStyle, "Audit Analytics"))
	printKV("Window", fmt.Sprintf("%s to %s",
		r.Period.Start.Format(time.RFC3339), r.Period.End.Format(time.RFC3339)))
	printKV("Total events", fmt.Sprintf("%d", r.Metrics.TotalEvents))
	printKV("Unique actors", fmt.Sprintf("%d", r.Metrics.UniqueActors))
	for result, n := range r.Metrics.ByResult {
		printKV("  "+result, fmt.Sprintf("%d", n))
	}
	if r.Partial {
		fmt.Println(renderIf(WarningStyle, "warning: some tiers were unreachable, counts are partial"))
	}

	if len(r.Anomalies) > 0 {
		fmt.Println(renderIf(SectionStyle, "Anomalies"))
		for _, a := range r.Anomalies {
			fmt.Printf("  %-8s score=%-3d %s  %s\n",
				a.Severity, a.Score, a.EventID, strings.Join(a.Reasons, "; "))
		}
	}
	if len(r.Patterns) > 0 {
		fmt.Println(renderIf(SectionStyle, "Patterns"))
		for _, p := range r.Patterns {
			fmt.Printf("  %-8s %-18s %s\n", p.Severity, p.Kind, p.Description)
		}
	}

	if verbose && len(r.Daily) > 0 {
		fmt.Println(renderIf(SectionStyle, "Daily volume"))
		for _, pt := range r.Daily {
			fmt.Printf("  %s  %d\n", pt.Bucket.Format("2006-01-02"), pt.Count)
		}
	}
}
