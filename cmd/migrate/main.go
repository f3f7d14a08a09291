package main

import (
	"flag"
	"log"

	"discipleship/internal/config"
	"discipleship/internal/store/migrate"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Fatalf("migrations %s failed: %v", *direction, err)
	}
	log.Printf("migrations %s done", *direction)
}
