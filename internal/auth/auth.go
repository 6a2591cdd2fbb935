// Package auth manages the API token: stored at ~/.coda/credentials with
// owner-only permissions, overridable with CODA_API_TOKEN, and inspected as a
// JWT (without signature verification) to report expiry before a request is
// ever made.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"

	"github.com/sokinpui/coda/internal/config"
)

const (
	envToken        = "CODA_API_TOKEN"
	credentialsFile = "credentials"
)

// ErrNoToken means no token is available from the environment or disk.
var ErrNoToken = errors.New("no API token: run coda --login or set CODA_API_TOKEN")

// Token returns the active token. The environment wins over the stored file.
func Token() (string, error) {
	if tok := strings.TrimSpace(os.Getenv(envToken)); tok != "" {
		return tok, nil
	}
	path, err := credentialsPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// Save writes the token to disk with 0600 permissions.
func Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("refusing to save empty token")
	}
	path, err := credentialsPath()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Clear removes the stored token. Clearing an absent token is not an error.
func Clear() error {
	path, err := credentialsPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

// Expiry returns the token's exp claim. ok is false when the token is not a
// JWT or carries no expiry; such tokens are used as-is.
func Expiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsExpired reports whether a JWT token's expiry has passed. Non-JWT tokens
// are never considered expired.
func IsExpired(token string) bool {
	exp, ok := Expiry(token)
	return ok && time.Now().After(exp)
}

// PromptToken reads a token from the terminal without echo, falling back to a
// plain line read when stdin is not a terminal.
func PromptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "API token: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func credentialsPath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, credentialsFile), nil
}
