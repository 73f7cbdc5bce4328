// Package web provides embedded static assets for the status server.
package web

import "embed"

// Static contains the embedded status page.
//
//go:embed static/*
var Static embed.FS
