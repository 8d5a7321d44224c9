// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Command msalcache inspects and maintains MSAL token cache files.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	ctx := context.Background()
	cfg, err := loadConfig(ctx, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
