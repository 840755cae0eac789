package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "veracity"
	secretPrefix   = "engine_"
	secretSuffix   = "_token"

	dirMode  = 0700
	fileMode = 0600
)

var (
	// ErrTokenNotFound is returned when neither the OS keychain nor the
	// fallback file holds a token for the engine.
	ErrTokenNotFound = errors.New("engine token not found")

	engineNameExp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// Store keeps external engine credentials in the OS keychain and falls
// back to files in dir on systems without one.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("store directory is required")
	}
	return &Store{dir: dir}, nil
}

// SetToken saves the token for the named engine.
func (s *Store) SetToken(engine, token string) error {
	if err := validateEngineName(engine); err != nil {
		return err
	}
	if token == "" {
		return errors.New("token is required")
	}

	if err := keyring.Set(keyringService, secretName(engine), token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "engine", engine, "error", err)
		return s.saveTokenFile(engine, token)
	}

	// Clean up the fallback file if an earlier save left one behind
	os.Remove(s.tokenPath(engine))

	return nil
}

// GetToken returns the token for the named engine, migrating file
// fallbacks into the keychain when one becomes available.
func (s *Store) GetToken(engine string) (string, error) {
	if err := validateEngineName(engine); err != nil {
		return "", err
	}

	token, err := keyring.Get(keyringService, secretName(engine))
	if err == nil && token != "" {
		return token, nil
	}

	token, err = s.getTokenFile(engine)
	if err != nil {
		return "", err
	}

	if migrateErr := keyring.Set(keyringService, secretName(engine), token); migrateErr == nil {
		slog.Info("migrated engine token from file to OS keychain", "engine", engine)
		os.Remove(s.tokenPath(engine))
	}

	return token, nil
}

// DeleteToken removes the token for the named engine from both backends.
func (s *Store) DeleteToken(engine string) error {
	if err := validateEngineName(engine); err != nil {
		return err
	}

	if err := keyring.Delete(keyringService, secretName(engine)); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Warn("keychain delete failed", "engine", engine, "error", err)
	}

	if err := os.Remove(s.tokenPath(engine)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}

	return nil
}

func (s *Store) saveTokenFile(engine, token string) error {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("creating token directory %s: %w", s.dir, err)
	}
	if err := os.WriteFile(s.tokenPath(engine), []byte(token), fileMode); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

func (s *Store) getTokenFile(engine string) (string, error) {
	b, err := os.ReadFile(s.tokenPath(engine))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("engine %s: %w", engine, ErrTokenNotFound)
		}
		return "", fmt.Errorf("reading token file %s: %w", s.tokenPath(engine), err)
	}

	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", fmt.Errorf("engine %s: %w", engine, ErrTokenNotFound)
	}

	return token, nil
}

func (s *Store) tokenPath(engine string) string {
	return path.Join(s.dir, secretName(engine))
}

func secretName(engine string) string {
	return secretPrefix + engine + secretSuffix
}

func validateEngineName(engine string) error {
	if !engineNameExp.MatchString(engine) {
		return fmt.Errorf("invalid engine name: %q", engine)
	}
	return nil
}
