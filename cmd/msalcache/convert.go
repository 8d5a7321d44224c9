// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AzureAD/msal-go-token-cache/apps/cache"
)

func newConvertCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "convert <src> <dst>",
		Short: "Copy a cache file, converting between formats",
		Long: `Copy a cache file, converting between the current and the legacy format.

dst is created or replaced. Both files use the configured key, if any.

Examples:
  msalcache convert --from legacy --to current old.json new.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(from); err != nil {
				return err
			}
			if err := validFormat(to); err != nil {
				return err
			}
			c, err := a.read(cmd.Context(), args[0], from)
			if err != nil {
				return err
			}
			dst, err := a.store(args[1])
			if err != nil {
				return err
			}
			if err := dst.Export(cmd.Context(), formatted{c: c, format: to}, cache.ExportHints{}); err != nil {
				return err
			}
			n, err := count(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entities to %s (%s)\n", n, args[1], to)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", formatCurrent, "format of src, current or legacy")
	cmd.Flags().StringVar(&to, "to", formatLegacy, "format of dst, current or legacy")
	return cmd
}
