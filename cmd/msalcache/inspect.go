// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/AzureAD/msal-go-token-cache/apps/cache"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		format      string
		showSecrets bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "List the entities of a cache file",
		Long: `List every entity of a cache file, one table row each.

Secrets are masked unless --show-secrets is given.

Examples:
  msalcache inspect ~/.msal/cache.json
  msalcache inspect --format legacy legacy-cache.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}
			c, err := a.read(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Kind", "Key", "Detail", "Expires", "Secret"})
			total := 0
			for _, k := range kinds {
				entities, err := c.Entities(cmd.Context(), k)
				if err != nil {
					return err
				}
				for _, e := range entities {
					t.AppendRow(row(e, showSecrets))
				}
				total += len(entities)
			}
			t.AppendFooter(table.Row{"", "", "", "Total", total})
			t.SetColumnConfigs([]table.ColumnConfig{
				{Number: 2, WidthMax: 80},
				{Number: 5, Align: text.AlignRight},
			})
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", formatCurrent, "format of the file, current or legacy")
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print secrets instead of masking them")
	return cmd
}

func row(e cache.Entity, showSecrets bool) table.Row {
	key := e.Key().String()
	switch v := e.(type) {
	case cache.AccessToken:
		return table.Row{e.Kind(), key, v.Scopes, expires(v.ExpiresOn.T), mask(v.Secret, showSecrets)}
	case cache.RefreshToken:
		detail := ""
		if v.FamilyID != "" {
			detail = "family " + v.FamilyID
		}
		return table.Row{e.Kind(), key, detail, "", mask(v.Secret, showSecrets)}
	case cache.IDToken:
		return table.Row{e.Kind(), key, v.Realm, "", mask(v.Secret, showSecrets)}
	case cache.Account:
		return table.Row{e.Kind(), key, v.PreferredUsername, "", ""}
	case cache.AppMetaData:
		detail := ""
		if v.FamilyID != "" {
			detail = "family " + v.FamilyID
		}
		return table.Row{e.Kind(), key, detail, "", ""}
	}
	return table.Row{e.Kind(), key, "", "", ""}
}

func expires(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func mask(secret string, show bool) string {
	switch {
	case show:
		return secret
	case secret == "":
		return ""
	}
	return "****"
}
