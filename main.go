package main

import (
	"log"
	"log/slog"

	"queue-ticket/cmd"
	_ "queue-ticket/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded, using the environment", "error", err)
	}

	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
