package main

import (
	"fmt"
	"os"

	"github.com/soyeahso/promptsmith/internal/cli"
	"github.com/tillberg/autorestart"
)

func main() {
	// rebuild-and-restart loop for local development only
	if os.Getenv("PROMPTSMITH_AUTORESTART") == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
