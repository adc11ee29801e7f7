// Package main is the entry point for the Mini-App auth backend.
//
// main stays minimal: everything from config loading to graceful shutdown
// lives in internal/cli and internal/server.
//
//	go run ./cmd/server            # serve
//	go run ./cmd/server migrate up
package main

import (
	"context"
	"os"

	"github.com/sakif/miniapp-auth/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
