// Command hash-token prints the salted hash of a control token in the format
// expected by RADIOWAVE_CONTROL_TOKEN_HASH.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"radiowave/internal/auth"
)

func main() {
	var token string
	flag.StringVar(&token, "token", "", "Control token to hash (read from stdin when omitted)")
	flag.Parse()

	resolved, err := resolveToken(token, flag.Args(), os.Stdin)
	if err != nil {
		fatalf("%v", err)
	}

	hash, err := auth.HashToken(resolved)
	if err != nil {
		fatalf("hash token: %v", err)
	}
	fmt.Println(hash)
}

// resolveToken picks the token from --token, the first positional argument,
// or a single line on stdin, in that order.
func resolveToken(flagValue string, args []string, stdin io.Reader) (string, error) {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed, nil
	}
	if len(args) > 0 {
		if trimmed := strings.TrimSpace(args[0]); trimmed != "" {
			return trimmed, nil
		}
	}
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		if trimmed := strings.TrimSpace(scanner.Text()); trimmed != "" {
			return trimmed, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return "", fmt.Errorf("a non-empty token is required")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
