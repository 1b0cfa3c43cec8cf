package iam

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// CredentialDir is created inside the project directory.
	CredentialDir = ".hearth"
	// CredentialFile is the credential file name.
	CredentialFile = "auth.json"
)

var (
	// ErrTokenFileExists is returned by Save when a credential is already
	// stored and force is not set.
	ErrTokenFileExists = errors.New("token file already exists")
	// ErrTokenFileNotFound is returned by Load when nothing is stored.
	ErrTokenFileNotFound = errors.New("token file not found")
)

// Credential is a token pair issued for a project.
type Credential struct {
	URL          string `json:"url"`
	ProjectID    string `json:"project_id"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	TTL          int    `json:"ttl"`
	Scope        string `json:"scope"`
}

// FilePath returns <projectDir>/.hearth/auth.json with projectDir made
// absolute.
func FilePath(projectDir string) (string, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", projectDir, err)
	}
	return filepath.Join(abs, CredentialDir, CredentialFile), nil
}

// Exists reports whether a credential is stored for projectDir.
func Exists(projectDir string) (bool, error) {
	path, err := FilePath(projectDir)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Load reads the credential stored for projectDir.
func Load(projectDir string) (Credential, error) {
	path, err := FilePath(projectDir)
	if err != nil {
		return Credential{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credential{}, fmt.Errorf("%w: %s", ErrTokenFileNotFound, path)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cred, nil
}

// Save stores cred for projectDir, readable only by the owner. An existing
// file is replaced only when force is set.
func (c Credential) Save(projectDir string, force bool) error {
	path, err := FilePath(projectDir)
	if err != nil {
		return err
	}

	exists, err := Exists(projectDir)
	if err != nil {
		return err
	}
	if exists && !force {
		return fmt.Errorf("%w: %s", ErrTokenFileExists, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// WriteFile keeps the mode of a file it overwrites.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict %s: %w", path, err)
	}
	return nil
}
