// Command devtoken mints a bearer token for local testing against the api.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"discipleship/internal/auth"
	"discipleship/internal/config"
)

func main() {
	sub := flag.String("sub", "", "identity-provider subject of the user")
	role := flag.String("role", auth.RoleStudent, "student, instructor or admin")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *sub == "" {
		log.Fatal("-sub is required")
	}
	switch *role {
	case auth.RoleStudent, auth.RoleInstructor, auth.RoleAdmin:
	default:
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Production() {
		log.Fatal("refusing to mint tokens in production")
	}

	tok, exp, err := auth.Issue(*sub, *role, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		log.Fatalf("issue: %v", err)
	}
	fmt.Println(tok)
	log.Printf("expires %s", exp.Format(time.RFC3339))
}
