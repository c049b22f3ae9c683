package appfs

import "embed"

// FS holds the SQL migrations, static assets and email templates.
//go:embed migrations assets all:templates
var FS embed.FS
