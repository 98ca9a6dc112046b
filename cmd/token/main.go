package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"liveclass/internal/auth"
	"liveclass/internal/config"
)

// token mints an access token signed with the configured key, for local development and
// service-to-service callers.
func main() {
	sub := flag.String("sub", "", "subject (admin or student id)")
	role := flag.String("role", auth.RoleStudent, "admin or student")
	program := flag.String("program", "", "program of a student")
	flag.Parse()

	if *sub == "" {
		flag.Usage()
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *role != auth.RoleAdmin && *role != auth.RoleStudent {
		log.Fatalf("unknown role %q", *role)
	}

	tok, err := auth.Issue(*sub, *role, *program, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(tok.AccessToken)
}
