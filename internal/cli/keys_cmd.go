// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// keys_cmd.go - Signing key inspection and rotation. Key material itself
// never crosses stdout; only ids and sources do.

package cli

import (
	"fmt"
	"strings"
)

// HandleKeys handles the keys command.
func HandleKeys(args Args) error {
	eng, err := openEngine(args)
	if err != nil {
		fail(args.JSON, "keys", err)
	}
	defer eng.Close()

	switch args.Subcommand {
	case "", "show", "list":
		return OutputJSON(args.JSON, "keys", func() (interface{}, error) {
			info := eng.KeyInfo()
			if !args.JSON {
				fmt.Println(renderIf(TitleStyle, "Signing Keys"))
				printKV("Active key", info.ActiveID)
				printKV("Source", string(info.Source))
				printKV("Known keys", strings.Join(info.KeyIDs, ", "))
			}
			return info, nil
		})
	case "rotate":
		return OutputJSON(args.JSON, "keys rotate", func() (interface{}, error) {
			id, err := eng.RotateKey()
			if err != nil {
				if !args.JSON {
					fail(false, "keys rotate", err)
				}
				return nil, err
			}
			if !args.JSON {
				fmt.Printf("%s rotated to key %s; prior signatures remain verifiable\n", RenderStatus("ok"), id)
			}
			return map[string]interface{}{"activeKey": id}, nil
		})
	default:
		usageError("Unknown keys subcommand: %s", args.Subcommand)
		return nil
	}
}
