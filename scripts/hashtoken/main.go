// hashtoken derives the Argon2id hash of an admin bearer token.
//
// Usage (run from the repo root):
//
//	go run scripts/hashtoken/main.go
//
// Reads the token from stdin (so it never lands in shell history) and prints
// the hash to put in KEHAI_ADMIN_TOKEN_HASH. The daemon runs open when that
// variable is unset; set it before exposing the admin API beyond localhost.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ashita-ai/kehai/internal/auth"
)

func main() {
	fmt.Fprint(os.Stderr, "token: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: read token: %v\n", err)
		os.Exit(1)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		fmt.Fprintln(os.Stderr, "error: empty token")
		os.Exit(1)
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: hash token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
	fmt.Fprintln(os.Stderr, "Set KEHAI_ADMIN_TOKEN_HASH to the line above.")
}
