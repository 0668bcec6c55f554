package config

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "gapscan"

	// KeyringOpenAIItem is the key for the OpenAI API key
	KeyringOpenAIItem = "openai-api-key"

	// KeyringGeminiItem is the key for the Gemini API key
	KeyringGeminiItem = "gemini-api-key"
)

// KeyringManager handles secure credential storage in the OS keychain
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

// SaveOpenAIKey stores the OpenAI API key in the OS keychain.
// macOS: Keychain Access, Windows: Credential Manager, Linux: Secret Service.
func (km *KeyringManager) SaveOpenAIKey(apiKey string) error {
	return km.save(KeyringOpenAIItem, apiKey)
}

// SaveGeminiKey stores the Gemini API key in the OS keychain.
func (km *KeyringManager) SaveGeminiKey(apiKey string) error {
	return km.save(KeyringGeminiItem, apiKey)
}

// GetOpenAIKey retrieves the OpenAI API key from the OS keychain.
func (km *KeyringManager) GetOpenAIKey() (string, error) {
	return km.get(KeyringOpenAIItem)
}

// GetGeminiKey retrieves the Gemini API key from the OS keychain.
func (km *KeyringManager) GetGeminiKey() (string, error) {
	return km.get(KeyringGeminiItem)
}

// DeleteOpenAIKey removes the OpenAI API key from the OS keychain.
func (km *KeyringManager) DeleteOpenAIKey() error {
	return km.delete(KeyringOpenAIItem)
}

// DeleteGeminiKey removes the Gemini API key from the OS keychain.
func (km *KeyringManager) DeleteGeminiKey() error {
	return km.delete(KeyringGeminiItem)
}

func (km *KeyringManager) save(item, value string) error {
	if value == "" {
		return fmt.Errorf("api key cannot be empty")
	}
	if err := keyring.Set(KeyringService, item, value); err != nil {
		km.logger.Error("failed to save key to keychain", "item", item, "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	km.logger.Info("key saved to keychain", "service", KeyringService, "item", item)
	return nil
}

func (km *KeyringManager) get(item string) (string, error) {
	value, err := keyring.Get(KeyringService, item)
	if err == keyring.ErrNotFound {
		// Not an error - just not set yet
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	return value, nil
}

func (km *KeyringManager) delete(item string) error {
	err := keyring.Delete(KeyringService, item)
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	return nil
}

// IsAvailable checks whether the OS keychain is usable on this system.
func (km *KeyringManager) IsAvailable() bool {
	const probe = "availability-probe"
	if err := keyring.Set(KeyringService, probe, "ok"); err != nil {
		return false
	}
	keyring.Delete(KeyringService, probe)
	return true
}
