// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AzureAD/msal-go-token-cache/apps/cache"
)

func newRemoveAccountCmd(a *app) *cobra.Command {
	var (
		format        string
		clientID      string
		homeAccountID string
		environment   string
	)
	cmd := &cobra.Command{
		Use:   "remove-account <file>",
		Short: "Sign an account out of a client",
		Long: `Remove an account's tokens for one client from a cache file.

The client's family refresh tokens are removed too. The account itself is removed once no
client has tokens for it.

Examples:
  msalcache remove-account --client-id 00000000-0000-0000-0000-000000000000 \
    --home-account-id uid.utid --environment login.microsoftonline.com cache.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}
			if clientID == "" {
				return errors.New("--client-id or MSALCACHE_CLIENT_ID is required")
			}
			ctx := cmd.Context()

			s, err := a.store(args[0])
			if err != nil {
				return err
			}
			c, err := cache.New(clientID, cache.WithLogger(a.log))
			if err != nil {
				return err
			}
			bind := c.Bind
			if format == formatLegacy {
				bind = c.BindLegacy
			}
			if err := bind(ctx, s); err != nil {
				return err
			}

			before, err := count(ctx, c)
			if err != nil {
				return err
			}
			account, ok, err := c.Account(ctx, homeAccountID, environment)
			if err != nil {
				return err
			}
			if !ok {
				account = cache.Account{HomeAccountID: homeAccountID, Environment: environment}
			}
			if err := c.RemoveAccount(ctx, account); err != nil {
				return err
			}
			after, err := count(ctx, c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entities\n", before-after)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", formatCurrent, "format of the file, current or legacy")
	cmd.Flags().StringVar(&clientID, "client-id", a.cfg.ClientID, "client to sign the account out of")
	cmd.Flags().StringVar(&homeAccountID, "home-account-id", "", "home account id, uid.utid")
	cmd.Flags().StringVar(&environment, "environment", "", "authority host, for example login.microsoftonline.com")
	_ = cmd.MarkFlagRequired("home-account-id")
	_ = cmd.MarkFlagRequired("environment")
	return cmd
}
