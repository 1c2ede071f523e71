// Package appfs embeds the static assets shipped with the binary.
package appfs

import "embed"

//go:embed all:assets migrations
var FS embed.FS
