// Package main is the entry point for the offlinesync CLI.
package main

import (
	"os"

	"github.com/jask/offlinesync/cmd/offlinesync/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
