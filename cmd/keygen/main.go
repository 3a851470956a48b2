// Package main provides a CLI tool for creating organizer API keys. With
// DATABASE_URL set the organizer is written straight to the database;
// otherwise the key id and bcrypt hash are printed for manual insertion.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pep-dortmund/member-database/internal/authz"
	"github.com/pep-dortmund/member-database/internal/platform/database"
)

func main() {
	keyID := flag.String("key-id", "", "key id half of the api key (required)")
	name := flag.String("name", "", "organizer display name")
	email := flag.String("email", "", "organizer contact address")
	caps := flag.String("capabilities", "all",
		"comma-separated capabilities, or \"all\"")
	flag.Parse()

	if *keyID == "" || strings.Contains(*keyID, ".") {
		fmt.Fprintln(os.Stderr, "a -key-id without dots is required")
		os.Exit(2)
	}

	capabilities, err := parseCapabilities(*caps)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	secret, err := authz.GenerateKeySecret()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	hash, err := authz.HashKeySecret(secret)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	organizer := &authz.Organizer{
		Name:         *name,
		Email:        *email,
		KeyID:        *keyID,
		KeyHash:      hash,
		Capabilities: capabilities,
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := database.Connect(ctx, database.DefaultConfig(url))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := authz.NewPostgresStore(pool).Save(ctx, organizer); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("organizer saved")
	} else {
		fmt.Printf("key_id:   %s\nkey_hash: %s\n", organizer.KeyID, organizer.KeyHash)
	}

	fmt.Printf("api key:  %s.%s\n", organizer.KeyID, secret)
	fmt.Println("the secret is not recoverable, store it now")
}

func parseCapabilities(spec string) ([]authz.Capability, error) {
	if spec == "all" {
		return authz.All(), nil
	}
	known := make(map[authz.Capability]bool)
	for _, c := range authz.All() {
		known[c] = true
	}
	var out []authz.Capability
	for _, raw := range strings.Split(spec, ",") {
		c := authz.Capability(strings.TrimSpace(raw))
		if !known[c] {
			return nil, fmt.Errorf("unknown capability %q", c)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no capabilities given")
	}
	return out, nil
}
