package github

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

// tokenFile is the name of the token file inside the config directory.
const tokenFile = "github_token"

// TokenPath returns the token file path under the config directory.
func TokenPath(configDir string) string {
	return filepath.Join(configDir, tokenFile)
}

// SaveToken writes the token with owner-only permissions.
func SaveToken(configDir, token string) error {
	if token == "" {
		return fmt.Errorf("github: token is empty")
	}
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("github: create config dir: %w", err)
	}
	path := TokenPath(configDir)
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("github: write token: %w", err)
	}
	return nil
}

// LoadToken reads the stored token. A missing file is an error the caller
// turns into a "run connect first" hint.
func LoadToken(configDir string) (string, error) {
	data, err := os.ReadFile(TokenPath(configDir))
	if err != nil {
		return "", fmt.Errorf("github: read token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("github: token file is empty")
	}
	return token, nil
}

// PromptToken reads a token from the user without echoing when stdin is a
// terminal, falling back to a plain line read otherwise (pipes, tests).
func PromptToken(in *os.File, out io.Writer) (string, error) {
	fmt.Fprint(out, "GitHub personal access token: ")

	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("github: read token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("github: read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
