// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// report_cmd.go - Compliance reporting: generate, list, show, verify, and
// surface per-framework violations.

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
)

// HandleReport handles the report command.
func HandleReport(args Args) error {
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "report", err)
	}
	defer eng.Close()
	ctx := context.Background()

	switch args.Subcommand {
	case "generate", "gen":
		return reportGenerate(ctx, args, eng.GenerateReport)
	case "list", "ls", "":
		return OutputJSON(args.JSON, "report list", func() (interface{}, error) {
			rtype := audit.ReportType("")
			if v := args.Option("type", ""); v != "" {
				rt, err := parseReportType(v)
				if err != nil {
					usageError("%v", err)
				}
				rtype = rt
			}
			reports, err := eng.ListReports(ctx, rtype, mustInt(args, "limit", 20))
			if err != nil {
				if !args.JSON {
					fail(false, "report list", err)
				}
				return nil, err
			}
			if !args.JSON {
				if len(reports) == 0 {
					fmt.Println(renderIf(DimStyle, "no reports"))
				}
				for _, r := range reports {
					fmt.Printf("%s  %-8s  %s to %s  (%d events, %d incidents)\n",
						r.ID, r.Type,
						r.Period.Start.Format("2006-01-02"), r.Period.End.Format("2006-01-02"),
						r.Summary.TotalEvents, r.Summary.SecurityIncidents)
				}
			}
			return map[string]interface{}{"reports": reports, "count": len(reports)}, nil
		})
	case "show":
		if len(args.Raw) < 2 {
			usageError("Usage: auditcore report show <id>")
		}
		return OutputJSON(args.JSON, "report show", func() (interface{}, error) {
			r, err := eng.GetReport(ctx, args.Raw[1])
			if err != nil {
				if !args.JSON {
					fail(false, "report show", err)
				}
				return nil, err
			}
			if !args.JSON {
				printReport(r)
			}
			return r, nil
		})
	case "verify":
		if len(args.Raw) < 2 {
			usageError("Usage: auditcore report verify <id>")
		}
		return OutputJSON(args.JSON, "report verify", func() (interface{}, error) {
			r, err := eng.GetReport(ctx, args.Raw[1])
			if err != nil {
				if !args.JSON {
					fail(false, "report verify", err)
				}
				return nil, err
			}
			if err := eng.VerifyReport(r); err != nil {
				if !args.JSON {
					fmt.Printf("%s report %s: %v\n", RenderStatus("fail"), r.ID, err)
				}
				return nil, err
			}
			if !args.JSON {
				fmt.Printf("%s report %s signature verified\n", RenderStatus("ok"), r.ID)
			}
			return map[string]interface{}{"id": r.ID, "verified": true}, nil
		})
	case "violations":
		if len(args.Raw) < 2 {
			usageError("Usage: auditcore report violations <soc2|gdpr|hipaa|pci-dss|custom> [--from TIME --to TIME]")
		}
		rtype, err := parseReportType(args.Raw[1])
		if err != nil {
			usageError("%v", err)
		}
		start, end := mustWindow(args)
		return OutputJSON(args.JSON, "report violations", func() (interface{}, error) {
			violations, err := eng.Violations(ctx, rtype, start, end)
			if err != nil {
				if !args.JSON {
					fail(false, "report violations", err)
				}
				return nil, err
			}
			if !args.JSON {
				if len(violations) == 0 {
					fmt.Printf("%s no violations in window\n", RenderStatus("ok"))
				}
				for _, v := range violations {
					fmt.Printf("%s %s  %s %s on %s by %s\n",
						renderIf(WarningStyle, v.Rule), v.Event.ID,
						v.Event.Timestamp.Format(time.RFC3339),
						v.Event.Action.Type, v.Event.Action.Resource, v.Event.Actor.ID)
				}
			}
			return map[string]interface{}{"violations": violations, "count": len(violations)}, nil
		})
	default:
		usageError("Unknown report subcommand: %s", args.Subcommand)
		return nil
	}
}

func reportGenerate(ctx context.Context, args Args, generate func(context.Context, audit.ReportType, time.Time, time.Time, string) (*audit.ComplianceReport, error)) error {
	if len(args.Raw) < 2 {
		usageError("Usage: auditcore report generate <soc2|gdpr|hipaa|pci-dss|custom> [--from TIME --to TIME --by NAME]")
	}
	rtype, err := parseReportType(args.Raw[1])
	if err != nil {
		usageError("%v", err)
	}
	start, end := mustWindow(args)
	generatedBy := args.Option("by", "")
	if generatedBy == "" {
		if u := os.Getenv("USER"); u != "" {
			generatedBy = u
		} else {
			generatedBy = "auditcore"
		}
	}

	return OutputJSON(args.JSON, "report generate", func() (interface{}, error) {
		r, err := generate(ctx, rtype, start, end, generatedBy)
		if err != nil {
			if !args.JSON {
				fail(false, "report generate", err)
			}
			return nil, err
		}
		if !args.JSON {
			printReport(r)
		}
		return r, nil
	})
}

// parseReportType accepts the lowercase CLI spellings alongside the
// canonical framework names.
func parseReportType(s string) (audit.ReportType, error) {
	switch strings.ToLower(s) {
	case "soc2":
		return audit.ReportSOC2, nil
	case "gdpr":
		return audit.ReportGDPR, nil
	case "hipaa":
		return audit.ReportHIPAA, nil
	case "pci-dss", "pcidss", "pci":
		return audit.ReportPCIDSS, nil
	case "custom":
		return audit.ReportCustom, nil
	}
	rt := audit.ReportType(s)
	if rt.IsValid() {
		return rt, nil
	}
	return "", fmt.Errorf("unknown report type %q (expected soc2, gdpr, hipaa, pci-dss, or custom)", s)
}

func printReport(r *audit.ComplianceReport) {
	fmt.Println(renderIf(TitleStyle, fmt.Sprintf("%s Compliance Report", r.Type)))
	printKV("ID", r.ID)
	printKV("Period", fmt.Sprintf("%s to %s",
		r.Period.Start.Format(time.RFC3339), r.Period.End.Format(time.RFC3339)))
	printKV("Generated by", r.GeneratedBy)
	printKV("Generated at", r.GeneratedAt.Format(time.RFC3339))
	printKV("Total events", fmt.Sprintf("%d", r.Summary.TotalEvents))
	printKV("Successful", fmt.Sprintf("%d", r.Summary.SuccessfulActions))
	printKV("Failed", fmt.Sprintf("%d", r.Summary.FailedActions))
	printKV("Incidents", fmt.Sprintf("%d", r.Summary.SecurityIncidents))
	if len(r.Classes) > 0 {
		fmt.Println(renderIf(SectionStyle, "Event classes"))
		for class, n := range r.Classes {
			printKV(class, fmt.Sprintf("%d", n))
		}
	}
	if r.Signature != "" {
		printKV("Signature", r.Signature)
	}
}
