// Package assets embeds the built-in arenas so the server can run without a
// data directory.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed all:arenas
var arenaFS embed.FS

// Arenas returns the built-in .tmx arenas rooted at their directory.
func Arenas() fs.FS {
	sub, err := fs.Sub(arenaFS, "arenas")
	if err != nil {
		panic(err)
	}
	return sub
}
