// Package migrations embeds the goose migrations for every supported database.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
