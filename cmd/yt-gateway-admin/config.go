package main

import (
	"encoding/json"
	"fmt"
)

func runPrintConfig(cmdCtx *commandContext, _ []string) error {
	enc := json.NewEncoder(cmdCtx.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cmdCtx.Config.Redacted()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
