// Package main is the entry point for the lookupd application
package main

import (
	"github.com/lookupd/lookupd/cmd"

	_ "github.com/lib/pq"
)

func main() {
	cmd.Execute()
}
