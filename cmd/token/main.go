// Command token mints an identity token for local testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"tictactoe/internal/auth"
	"tictactoe/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML config file")
	name := flag.String("name", "", "display name (required)")
	id := flag.String("id", "", "user id, random when empty")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	if conf.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "auth.jwt-secret (JWT_SECRET) is not set")
		os.Exit(1)
	}
	if *id == "" {
		*id = uuid.NewString()
	}

	token, err := auth.NewJWTResolver(conf.Auth.JWTSecret).Issue(auth.Identity{ID: *id, Name: *name}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
