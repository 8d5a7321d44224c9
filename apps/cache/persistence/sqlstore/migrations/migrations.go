// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package migrations embeds the schema of the token cache database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
