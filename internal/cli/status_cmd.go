// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status_cmd.go - Store and key status at a glance.

package cli

import (
	"context"
	"fmt"
	"time"
)

// HandleStatus handles the status command.
func HandleStatus(args Args) error {
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "status", err)
	}
	defer eng.Close()

	return OutputJSON(args.JSON, "status", func() (interface{}, error) {
		stats, err := eng.Stats(context.Background())
		if err != nil {
			if !args.JSON {
				fail(false, "status", err)
			}
			return nil, err
		}
		info := eng.KeyInfo()
		if !args.JSON {
			fmt.Println(renderIf(TitleStyle, "auditcore status"))
			for _, tier := range []string{"hot", "warm", "cold"} {
				ts := stats.Tiers[tier]
				printKV(tier, fmt.Sprintf("%d events in %d batches", ts.Events, ts.Batches))
			}
			printKV("Shards", fmt.Sprintf("%d", stats.Shards))
			printKV("Disposal eligible", fmt.Sprintf("%d", stats.DisposalEligible))
			if stats.Oldest != nil {
				printKV("Oldest event", stats.Oldest.Format(time.RFC3339))
			}
			if stats.Newest != nil {
				printKV("Newest event", stats.Newest.Format(time.RFC3339))
			}
			fmt.Println(RenderSeparator())
			printKV("Active key", info.ActiveID)
			printKV("Key source", string(info.Source))
		}
		return map[string]interface{}{"store": stats, "keys": info}, nil
	})
}
