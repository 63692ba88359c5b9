package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// KeyringService is the OS keychain service name Jetty's credentials are filed under.
const KeyringService = "Jetty"

// CredentialStore holds connector secrets. The core never parses the
// contents beyond connector-namespace -> secret lookups. It prefers the OS
// keychain, falling back to a restrictive-permission YAML file for headless
// environments where no keychain is reachable.
type CredentialStore struct {
	filePath string // fallback path for an unreachable keychain or a secret missing from it
}

// NewCredentialStore opens a credential store. fallbackFilePath receives new
// secrets only when IsKeyringAvailable reports false; Get also reads it when
// the keychain has no entry, and Delete always clears it.
func NewCredentialStore(fallbackFilePath string) *CredentialStore {
	return &CredentialStore{filePath: fallbackFilePath}
}

func keyringItem(connectorNamespace string) string {
	return connectorNamespace + "-secret"
}

// IsKeyringAvailable reports whether the OS keychain can be reached.
func (s *CredentialStore) IsKeyringAvailable() bool {
	_, err := keyring.Get(KeyringService, "jetty-availability-probe")
	return err == nil || err == keyring.ErrNotFound
}

// Set stores the secret for connectorNamespace.
func (s *CredentialStore) Set(connectorNamespace, secret string) error {
	if secret == "" {
		return fmt.Errorf("secret for connector %q cannot be empty", connectorNamespace)
	}
	if s.IsKeyringAvailable() {
		if err := keyring.Set(KeyringService, keyringItem(connectorNamespace), secret); err != nil {
			return fmt.Errorf("save %s secret to OS keychain: %w", connectorNamespace, err)
		}
		return nil
	}
	return s.setFile(connectorNamespace, secret)
}

// Get retrieves the secret for connectorNamespace, or "" if unset.
func (s *CredentialStore) Get(connectorNamespace string) (string, error) {
	if s.IsKeyringAvailable() {
		secret, err := keyring.Get(KeyringService, keyringItem(connectorNamespace))
		if err == keyring.ErrNotFound {
			return s.getFile(connectorNamespace)
		}
		if err != nil {
			return "", fmt.Errorf("read %s secret from OS keychain: %w", connectorNamespace, err)
		}
		return secret, nil
	}
	return s.getFile(connectorNamespace)
}

// Delete removes a stored secret for connectorNamespace.
func (s *CredentialStore) Delete(connectorNamespace string) error {
	err := keyring.Delete(KeyringService, keyringItem(connectorNamespace))
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("delete %s secret from OS keychain: %w", connectorNamespace, err)
	}
	return s.deleteFile(connectorNamespace)
}

// PromptAndSet reads a secret from the terminal without echoing it (falling
// back to a line read when stdin is piped) and stores it for connectorNamespace.
func (s *CredentialStore) PromptAndSet(connectorNamespace string) error {
	fmt.Printf("Enter secret for connector %q: ", connectorNamespace)
	secret, err := readSecurely()
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}
	if secret == "" {
		return fmt.Errorf("secret cannot be empty")
	}
	return s.Set(connectorNamespace, secret)
}

func readSecurely() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		bytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

type credentialFile struct {
	Secrets map[string]string `yaml:"secrets"`
}

func (s *CredentialStore) loadFile() (credentialFile, error) {
	var cf credentialFile
	cf.Secrets = make(map[string]string)
	if s.filePath == "" {
		return cf, nil
	}
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return cf, nil
	}
	if err != nil {
		return cf, fmt.Errorf("read credentials file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return cf, fmt.Errorf("parse credentials file: %w", err)
	}
	if cf.Secrets == nil {
		cf.Secrets = make(map[string]string)
	}
	return cf, nil
}

func (s *CredentialStore) setFile(connectorNamespace, secret string) error {
	if s.filePath == "" {
		return fmt.Errorf("no keychain available and no fallback credentials file configured")
	}
	cf, err := s.loadFile()
	if err != nil {
		return err
	}
	cf.Secrets[connectorNamespace] = secret
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	data, err := yaml.Marshal(cf)
	if err != nil {
		return fmt.Errorf("marshal credentials file: %w", err)
	}
	return os.WriteFile(s.filePath, data, 0600)
}

func (s *CredentialStore) getFile(connectorNamespace string) (string, error) {
	cf, err := s.loadFile()
	if err != nil {
		return "", err
	}
	return cf.Secrets[connectorNamespace], nil
}

func (s *CredentialStore) deleteFile(connectorNamespace string) error {
	cf, err := s.loadFile()
	if err != nil {
		return err
	}
	if _, ok := cf.Secrets[connectorNamespace]; !ok {
		return nil
	}
	delete(cf.Secrets, connectorNamespace)
	data, err := yaml.Marshal(cf)
	if err != nil {
		return fmt.Errorf("marshal credentials file: %w", err)
	}
	return os.WriteFile(s.filePath, data, 0600)
}

// Mask renders a secret for display: first 4 and last 4 characters visible.
func Mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 10 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", secret[:4], secret[len(secret)-4:])
}
