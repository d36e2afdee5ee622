package main

import (
	"github.com/joho/godotenv"

	"github.com/opsplane/opsplane-backend/cmd"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

func main() {
	// A local .env is a development convenience; production configures
	// through real environment variables.
	if err := godotenv.Load(); err == nil {
		log.Info("loaded environment from .env")
	}

	cmd.Execute()
}
