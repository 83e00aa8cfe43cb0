// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// retention_cmd.go - Retention cycles and disposal purges.

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/auditcore/internal/retention"
	"github.com/jeranaias/auditcore/internal/store"
)

// HandleRetention handles the retention command.
func HandleRetention(args Args) error {
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "retention", err)
	}
	defer eng.Close()
	ctx := context.Background()

	switch args.Subcommand {
	case "", "run":
		return OutputJSON(args.JSON, "retention run", func() (interface{}, error) {
			report, err := eng.TriggerRetention(ctx)
			if err != nil {
				if !args.JSON {
					fail(false, "retention run", err)
				}
				return nil, err
			}
			if !args.JSON {
				printCycleReport(report)
			}
			return report, nil
		})
	case "preview", "dry-run":
		return OutputJSON(args.JSON, "retention preview", func() (interface{}, error) {
			evals, err := eng.PreviewRetention(ctx)
			if err != nil {
				if !args.JSON {
					fail(false, "retention preview", err)
				}
				return nil, err
			}
			if !args.JSON {
				if len(evals) == 0 {
					fmt.Println(renderIf(DimStyle, "nothing to move"))
				}
				for _, ev := range evals {
					fmt.Printf("%-14s %-24s %d events\n", ev.Type, ev.PolicyName, len(ev.EventIDs))
					if args.Verbose {
						for _, id := range ev.EventIDs {
							fmt.Printf("  %s\n", id)
						}
					}
				}
			}
			return map[string]interface{}{"evaluations": evals, "count": len(evals)}, nil
		})
	default:
		usageError("Unknown retention subcommand: %s", args.Subcommand)
		return nil
	}
}

// HandlePurge handles the purge command. Purging deletes
// disposal-eligible events for good, so it demands --confirm.
func HandlePurge(args Args) error {
	if !args.Confirm {
		usageError("purge permanently deletes disposal-eligible events; re-run with --confirm")
	}
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "purge", err)
	}
	defer eng.Close()

	return OutputJSON(args.JSON, "purge", func() (interface{}, error) {
		res, err := eng.PurgeDisposed(context.Background(), store.PurgeConfirmToken)
		if err != nil {
			if !args.JSON {
				fail(false, "purge", err)
			}
			return nil, err
		}
		if !args.JSON {
			fmt.Printf("%s purged %d events\n", RenderStatus("ok"), res.Purged)
			if len(res.RebuiltBatches) > 0 {
				printKV("Rebuilt batches", fmt.Sprintf("%d", len(res.RebuiltBatches)))
			}
			if res.CleanupErr != nil {
				fmt.Printf("%s blob cleanup: %v\n", RenderStatus("warn"), res.CleanupErr)
			}
		}
		return res, nil
	})
}

func printCycleReport(r *retention.CycleReport) {
	fmt.Println(renderIf(TitleStyle, "Retention Cycle"))
	printKV("Started", r.StartedAt.Format(time.RFC3339))
	printKV("Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String())
	printKV("Scanned", fmt.Sprintf("%d", r.Scanned))
	printKV("Moved to warm", fmt.Sprintf("%d", r.MovedToWarm))
	printKV("Moved to cold", fmt.Sprintf("%d", r.MovedToCold))
	printKV("Marked disposal", fmt.Sprintf("%d", r.MarkedDisposal))
	if r.SkippedMoves > 0 {
		printKV("Skipped moves", fmt.Sprintf("%d", r.SkippedMoves))
	}
	for _, c := range r.Conflicts {
		fmt.Printf("%s conflict: %s\n", RenderStatus("warn"), c)
	}
	for _, p := range r.Partial {
		fmt.Printf("%s partial: %s\n", RenderStatus("warn"), p)
	}
}
