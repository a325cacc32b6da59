// Package main signs back-office staff bearer tokens.
// Usage: stafftoken -user ops-1 -email ops@example.com -ttl 12h
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"backoffice/internal/config"
	"backoffice/internal/domain/token"
)

func main() {
	var (
		userID string
		email  string
		roles  string
		ttl    time.Duration
	)
	flag.StringVar(&userID, "user", "", "Staff user id (required)")
	flag.StringVar(&email, "email", "", "Staff email")
	flag.StringVar(&roles, "roles", "staff", "Comma separated roles")
	flag.DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	flag.Parse()

	if userID == "" {
		fmt.Println("Error: -user is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: load config: %v\n", err)
		os.Exit(1)
	}

	signer, err := token.NewStaffValidator([]byte(cfg.Token.Secret))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	signed, err := signer.Sign(userID, email, splitRoles(roles), ttl)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(signed)
}

func splitRoles(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
