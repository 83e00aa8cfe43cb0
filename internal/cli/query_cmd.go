// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// query_cmd.go - Tier-transparent event queries and single-event fetch.

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/auditcore/internal/store"
	"github.com/jeranaias/auditcore/internal/util"
)

// HandleQuery handles the query command.
func HandleQuery(args Args) error {
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "query", err)
	}
	defer eng.Close()

	f := store.Filter{
		ActorID:  args.Option("actor", ""),
		Resource: args.Option("resource", ""),
		Tier:     store.Tier(args.Option("tier", "")),
	}
	if v := args.Option("from", ""); v != "" {
		t, err := parseTimeArg(v)
		if err != nil {
			usageError("%v", err)
		}
		f.From = t
	}
	if v := args.Option("to", ""); v != "" {
		t, err := parseTimeArg(v)
		if err != nil {
			usageError("%v", err)
		}
		f.To = t
	}
	if f.Limit, err = intOption(args, "limit", 50); err != nil {
		usageError("%v", err)
	}
	if f.Offset, err = intOption(args, "offset", 0); err != nil {
		usageError("%v", err)
	}

	return OutputJSON(args.JSON, "query", func() (interface{}, error) {
		res, err := eng.Query(context.Background(), f)
		if err != nil {
			if !args.JSON {
				fail(false, "query", err)
			}
			return nil, err
		}
		if !args.JSON {
			printQueryResult(args, res)
		}
		return res, nil
	})
}

func printQueryResult(args Args, res *store.Result) {
	if res.Partial {
		fmt.Printf("%s degraded tiers: %v (results are partial)\n", RenderStatus("warn"), res.Degraded)
	}
	if len(res.Events) == 0 {
		fmt.Println(renderIf(DimStyle, "No events match."))
		return
	}
	// Resource paths can be arbitrarily long; keep rows on one line.
	resourceWidth := GetTerminalWidth() - 100
	if resourceWidth < 16 {
		resourceWidth = 16
	}
	for i := range res.Events {
		e := &res.Events[i]
		fmt.Printf("%s  %s  %-24s %-32s %s\n",
			renderIf(DimStyle, e.Timestamp.Format(time.RFC3339)),
			e.ID,
			util.TruncateRunes(e.Actor.ID, 24),
			util.TruncateRunes(e.Action.Type, 32),
			util.TruncateRunes(e.Action.Resource, resourceWidth))
	}
	if !args.Quiet {
		fmt.Printf("\n%d events\n", len(res.Events))
	}
}

// HandleGet handles the get command.
func HandleGet(args Args) error {
	if len(args.Raw) == 0 {
		usageError("Usage: auditcore get <event-id>")
	}
	id := args.Raw[0]

	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "get", err)
	}
	defer eng.Close()

	return OutputJSON(args.JSON, "get", func() (interface{}, error) {
		e, tier, err := eng.Get(context.Background(), id)
		if err != nil {
			if !args.JSON {
				fail(false, "get", err)
			}
			return nil, err
		}
		if !args.JSON {
			fmt.Println(renderIf(TitleStyle, "Event "+e.ID))
			printKV("Timestamp", e.Timestamp.Format(time.RFC3339))
			printKV("Tier", string(tier))
			printKV("Actor", fmt.Sprintf("%s (%s)", e.Actor.ID, e.Actor.Type))
			if e.Actor.IP != "" {
				printKV("IP", e.Actor.IP)
			}
			printKV("Action", e.Action.Type)
			printKV("Resource", e.Action.Resource)
			printKV("Result", string(e.Action.Result))
			printKV("Environment", e.Context.Environment)
			printKV("Application", e.Context.Application)
			printKV("Signature", e.Signature)
			for k, v := range e.Action.Metadata {
				printKV("  meta."+k, v)
			}
		}
		return map[string]interface{}{"event": e, "tier": tier}, nil
	})
}
