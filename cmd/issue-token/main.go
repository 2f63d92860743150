// Command issue-token signs a bearer token for local development and testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"famledger/internal/auth"
	"famledger/internal/cli"
	"famledger/internal/config"
	"famledger/internal/core"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()

	user := flag.String("user", "", "user id to put in the token (required)")
	role := flag.String("role", string(core.RoleMember), "role: member or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "issue-token: -user is required")
		flag.Usage()
		os.Exit(2)
	}
	r := core.Role(*role)
	if r != core.RoleMember && r != core.RoleAdmin {
		fmt.Fprintf(os.Stderr, "issue-token: unknown role %q\n", *role)
		os.Exit(2)
	}
	if len(cfg.JWTSecret) < 32 {
		fmt.Fprintln(os.Stderr, "issue-token: JWT_SECRET must be set and at least 32 bytes")
		os.Exit(1)
	}

	token, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer).Issue(core.Caller{UserID: *user, Role: r}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
