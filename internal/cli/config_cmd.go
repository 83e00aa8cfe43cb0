// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration inspection and bootstrap.

package cli

import (
	"fmt"
	"os"

	"github.com/jeranaias/auditcore/internal/config"
)

// HandleConfig handles the config command.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		cfg, err := loadConfig(args)
		if err != nil {
			fail(args.JSON, "config", err)
		}
		if args.JSON {
			// String() already redacts key material and renders JSON.
			fmt.Println(cfg.String())
			return nil
		}
		fmt.Println(renderIf(TitleStyle, "auditcore configuration"))
		fmt.Println(cfg.String())
		return nil
	case "init":
		path := args.ConfigPath
		if path == "" {
			p, err := config.ConfigPath()
			if err != nil {
				fail(args.JSON, "config init", err)
			}
			path = p
		}
		if _, err := os.Stat(path); err == nil && !args.Confirm {
			usageError("config already exists at %s; re-run with --confirm to overwrite", path)
		}
		cfg := config.Default()
		cfg.SetDefaults()
		if err := config.SaveTOML(cfg, path); err != nil {
			fail(args.JSON, "config init", err)
		}
		return OutputJSON(args.JSON, "config init", func() (interface{}, error) {
			if !args.JSON {
				fmt.Printf("%s wrote default configuration to %s\n", RenderStatus("ok"), path)
			}
			return map[string]interface{}{"path": path}, nil
		})
	case "path":
		path, err := config.ConfigPath()
		if err != nil {
			fail(args.JSON, "config path", err)
		}
		return OutputJSON(args.JSON, "config path", func() (interface{}, error) {
			if !args.JSON {
				fmt.Println(path)
			}
			return map[string]interface{}{"path": path}, nil
		})
	default:
		usageError("Unknown config subcommand: %s", args.Subcommand)
		return nil
	}
}
