// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// policy_cmd.go - Retention policy CRUD.

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/auditcore/internal/audit"
)

// HandlePolicy handles the policy command.
func HandlePolicy(args Args) error {
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "policy", err)
	}
	defer eng.Close()
	ctx := context.Background()

	switch args.Subcommand {
	case "", "list", "ls":
		enabledOnly := !args.HasOption("all")
		return OutputJSON(args.JSON, "policy list", func() (interface{}, error) {
			policies, err := eng.ListPolicies(ctx, enabledOnly)
			if err != nil {
				if !args.JSON {
					fail(false, "policy list", err)
				}
				return nil, err
			}
			if !args.JSON {
				if len(policies) == 0 {
					fmt.Println(renderIf(DimStyle, "no policies"))
				}
				for _, p := range policies {
					state := RenderStatus("ok")
					if !p.Enabled {
						state = renderIf(DimStyle, "[disabled]")
					}
					fmt.Printf("%s %s  %-24s  hot=%dd warm=%dd cold=%dy  v%d\n",
						state, p.ID, p.Name,
						p.HotStorageDays, p.WarmStorageDays, p.ColdStorageYears, p.Version)
				}
			}
			return map[string]interface{}{"policies": policies, "count": len(policies)}, nil
		})
	case "show":
		if len(args.Raw) < 2 {
			usageError("Usage: auditcore policy show <id>")
		}
		return OutputJSON(args.JSON, "policy show", func() (interface{}, error) {
			p, err := eng.GetPolicy(ctx, args.Raw[1])
			if err != nil {
				if !args.JSON {
					fail(false, "policy show", err)
				}
				return nil, err
			}
			if !args.JSON {
				printPolicy(p)
			}
			return p, nil
		})
	case "create":
		p := policyFromFlags(args)
		return OutputJSON(args.JSON, "policy create", func() (interface{}, error) {
			created, err := eng.CreatePolicy(ctx, p)
			if err != nil {
				if !args.JSON {
					fail(false, "policy create", err)
				}
				return nil, err
			}
			if !args.JSON {
				fmt.Printf("%s created policy %s\n", RenderStatus("ok"), created.ID)
				printPolicy(created)
			}
			return created, nil
		})
	case "update":
		if len(args.Raw) < 2 {
			usageError("Usage: auditcore policy update <id> [--name NAME --hot-days N --warm-days N --cold-years N ...]")
		}
		return OutputJSON(args.JSON, "policy update", func() (interface{}, error) {
			current, err := eng.GetPolicy(ctx, args.Raw[1])
			if err != nil {
				if !args.JSON {
					fail(false, "policy update", err)
				}
				return nil, err
			}
			applyPolicyFlags(args, current)
			if err := current.ValidatePolicy(); err != nil {
				usageError("%v", err)
			}
			updated, err := eng.UpdatePolicy(ctx, current)
			if err != nil {
				if !args.JSON {
					fail(false, "policy update", err)
				}
				return nil, err
			}
			if !args.JSON {
				fmt.Printf("%s updated policy %s (now v%d)\n", RenderStatus("ok"), updated.ID, updated.Version)
				printPolicy(updated)
			}
			return updated, nil
		})
	case "enable", "disable":
		if len(args.Raw) < 2 {
			usageError("Usage: auditcore policy %s <id>", args.Subcommand)
		}
		enabled := args.Subcommand == "enable"
		return OutputJSON(args.JSON, "policy "+args.Subcommand, func() (interface{}, error) {
			p, err := eng.SetPolicyEnabled(ctx, args.Raw[1], enabled)
			if err != nil {
				if !args.JSON {
					fail(false, "policy "+args.Subcommand, err)
				}
				return nil, err
			}
			if !args.JSON {
				fmt.Printf("%s policy %s %sd\n", RenderStatus("ok"), p.ID, args.Subcommand)
			}
			return p, nil
		})
	case "delete", "rm":
		if len(args.Raw) < 2 {
			usageError("Usage: auditcore policy delete <id> --confirm")
		}
		if !args.Confirm {
			usageError("policy delete is destructive; re-run with --confirm")
		}
		id := args.Raw[1]
		return OutputJSON(args.JSON, "policy delete", func() (interface{}, error) {
			if err := eng.DeletePolicy(ctx, id); err != nil {
				if !args.JSON {
					fail(false, "policy delete", err)
				}
				return nil, err
			}
			if !args.JSON {
				fmt.Printf("%s deleted policy %s\n", RenderStatus("ok"), id)
			}
			return map[string]interface{}{"id": id, "deleted": true}, nil
		})
	default:
		usageError("Unknown policy subcommand: %s", args.Subcommand)
		return nil
	}
}

func policyFromFlags(args Args) *audit.RetentionPolicy {
	name := args.Option("name", "")
	if name == "" {
		usageError("policy create requires --name")
	}
	p := &audit.RetentionPolicy{
		Name:             name,
		HotStorageDays:   mustInt(args, "hot-days", 0),
		WarmStorageDays:  mustInt(args, "warm-days", 0),
		ColdStorageYears: mustInt(args, "cold-years", 0),
		Enabled:          !args.HasOption("disabled"),
		Criteria: audit.PolicyCriteria{
			ResourceTypes: csvOption(args, "resource-types"),
			ActorTypes:    csvOption(args, "actor-types"),
			CriticalOnly:  args.HasOption("critical-only"),
		},
	}
	if err := p.ValidatePolicy(); err != nil {
		usageError("%v", err)
	}
	return p
}

// applyPolicyFlags overlays supplied options onto an existing policy;
// absent flags leave fields alone.
func applyPolicyFlags(args Args, p *audit.RetentionPolicy) {
	if v := args.Option("name", ""); v != "" {
		p.Name = v
	}
	if args.HasOption("hot-days") {
		p.HotStorageDays = mustInt(args, "hot-days", p.HotStorageDays)
	}
	if args.HasOption("warm-days") {
		p.WarmStorageDays = mustInt(args, "warm-days", p.WarmStorageDays)
	}
	if args.HasOption("cold-years") {
		p.ColdStorageYears = mustInt(args, "cold-years", p.ColdStorageYears)
	}
	if args.HasOption("resource-types") {
		p.Criteria.ResourceTypes = csvOption(args, "resource-types")
	}
	if args.HasOption("actor-types") {
		p.Criteria.ActorTypes = csvOption(args, "actor-types")
	}
	if args.HasOption("critical-only") {
		p.Criteria.CriticalOnly = args.Option("critical-only", "") == "true"
	}
}

func printPolicy(p *audit.RetentionPolicy) {
	fmt.Println(renderIf(TitleStyle, "Retention Policy"))
	printKV("ID", p.ID)
	printKV("Name", p.Name)
	printKV("Enabled", fmt.Sprintf("%t", p.Enabled))
	printKV("Hot storage", fmt.Sprintf("%d days", p.HotStorageDays))
	printKV("Warm storage", fmt.Sprintf("%d days", p.WarmStorageDays))
	printKV("Cold storage", fmt.Sprintf("%d years", p.ColdStorageYears))
	if len(p.Criteria.ResourceTypes) > 0 {
		printKV("Resource types", strings.Join(p.Criteria.ResourceTypes, ", "))
	}
	if len(p.Criteria.ActorTypes) > 0 {
		printKV("Actor types", strings.Join(p.Criteria.ActorTypes, ", "))
	}
	if p.Criteria.CriticalOnly {
		printKV("Critical only", "true")
	}
	printKV("Version", fmt.Sprintf("%d", p.Version))
	printKV("Created", p.CreatedAt.Format(time.RFC3339))
	printKV("Updated", p.UpdatedAt.Format(time.RFC3339))
}
