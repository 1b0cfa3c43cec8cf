package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var readPassword = term.ReadPassword

// promptLine reads one line from stdin after printing question.
func promptLine(question string) (string, error) {
	fmt.Fprint(os.Stderr, question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads a value without echo. Stdin must be a terminal.
func promptSecret(question string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt for %s: stdin is not a terminal", strings.TrimSuffix(strings.ToLower(question), ": "))
	}

	fmt.Fprint(os.Stderr, question)
	secret, err := readPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(secret), nil
}

// promptNewSecret asks for a secret twice and fails when the entries
// differ or are empty.
func promptNewSecret(question string) (string, error) {
	first, err := promptSecret(question)
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", errors.New("empty input")
	}
	second, err := promptSecret("Repeat " + strings.ToLower(question))
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("entries do not match")
	}
	return first, nil
}
