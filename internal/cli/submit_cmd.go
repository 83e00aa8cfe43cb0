// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// submit_cmd.go - Event submission. Flags build a single event; --stdin
// reads one event or an array of events as JSON and submits the array
// as one sealed batch.

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/auditcore/internal/audit"
	"github.com/jeranaias/auditcore/internal/engine"
)

// HandleSubmit handles the submit command.
func HandleSubmit(args Args) error {
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "submit", err)
	}
	defer eng.Close()
	ctx := context.Background()

	if args.Options["stdin"] == "true" {
		return submitStdin(args, eng)
	}

	ev, err := eventFromFlags(args)
	if err != nil {
		usageError("%v", err)
	}

	return OutputJSON(args.JSON, "submit", func() (interface{}, error) {
		signed, err := eng.Submit(ctx, *ev)
		if err != nil {
			if !args.JSON {
				fail(false, "submit", err)
			}
			return nil, err
		}
		if !args.JSON && !args.Quiet {
			fmt.Printf("%s event %s\n", RenderStatus("ok"), signed.ID)
			if args.Verbose {
				printKV("Signature", signed.Signature)
				printKV("Timestamp", signed.Timestamp.Format("2006-01-02 15:04:05 UTC"))
			}
		}
		return signed, nil
	})
}

// eventFromFlags assembles an unsigned event from command options.
func eventFromFlags(args Args) (*audit.Event, error) {
	actor := args.Option("actor", "")
	actionType := args.Option("action", "")
	resource := args.Option("resource", "")
	if actor == "" || actionType == "" || resource == "" {
		return nil, fmt.Errorf("submit requires --actor, --action, and --resource")
	}

	ev := &audit.Event{
		Actor: audit.Actor{
			ID:      actor,
			Type:    audit.ActorType(args.Option("actor-type", string(audit.ActorUser))),
			IP:      args.Option("ip", ""),
			Session: args.Option("session", ""),
		},
		Action: audit.Action{
			Type:       actionType,
			Resource:   resource,
			ResourceID: args.Option("resource-id", ""),
			Result:     audit.ActionResult(args.Option("result", string(audit.ResultSuccess))),
		},
		Context: audit.Context{
			RequestID:   args.Option("request-id", ""),
			Environment: args.Option("env", "production"),
			Application: args.Option("app", "auditcore"),
			Version:     args.Option("app-version", ""),
		},
	}

	if meta := args.Option("meta", ""); meta != "" {
		ev.Action.Metadata = make(map[string]string)
		for _, entry := range strings.Split(meta, "\n") {
			kv := strings.SplitN(entry, "=", 2)
			if len(kv) != 2 || kv[0] == "" {
				return nil, fmt.Errorf("--meta wants KEY=VALUE, got %q", entry)
			}
			ev.Action.Metadata[kv[0]] = kv[1]
		}
	}
	return ev, nil
}

// submitStdin reads JSON from stdin: one event submits individually, an
// array submits as a sealed batch.
func submitStdin(args Args, eng *engine.Engine) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		fail(args.JSON, "submit", fmt.Errorf("failed to read stdin: %w", err))
	}
	ctx := context.Background()

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var events []audit.Event
		if err := json.Unmarshal(data, &events); err != nil {
			fail(args.JSON, "submit", fmt.Errorf("invalid event array: %w", err))
		}
		return OutputJSON(args.JSON, "submit", func() (interface{}, error) {
			batch, err := eng.SubmitBatch(ctx, events)
			if err != nil {
				if !args.JSON {
					fail(false, "submit", err)
				}
				return nil, err
			}
			if !args.JSON && !args.Quiet {
				fmt.Printf("%s batch %s (%d events)\n", RenderStatus("ok"), batch.BatchID, len(batch.Events))
			}
			return batch, nil
		})
	}

	var ev audit.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		fail(args.JSON, "submit", fmt.Errorf("invalid event: %w", err))
	}
	return OutputJSON(args.JSON, "submit", func() (interface{}, error) {
		signed, err := eng.Submit(ctx, ev)
		if err != nil {
			if !args.JSON {
				fail(false, "submit", err)
			}
			return nil, err
		}
		if !args.JSON && !args.Quiet {
			fmt.Printf("%s event %s\n", RenderStatus("ok"), signed.ID)
		}
		return signed, nil
	})
}
