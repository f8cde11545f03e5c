// Package web holds the page templates and the stylesheet served by the
// expensehub binary.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html static/*
var files embed.FS

// Templates returns the page templates rooted at their directory, so
// pages are addressed by bare file name.
func Templates() fs.FS {
	return mustSub("templates")
}

// Static returns the assets mounted under /static/.
func Static() fs.FS {
	return mustSub("static")
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
