package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"usdc-bridge/cmd"
)

func main() {
	// .env is optional, the environment may already carry the configuration
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
