package main

import (
	"os"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(int(Run()))
}
