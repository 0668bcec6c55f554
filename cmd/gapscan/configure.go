package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gapscan/gapscan/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup wizard (with OS keychain support)",
	Long: `Walk through gapscan configuration step-by-step.

This will configure:
1. LLM provider and API key (stored in the OS keychain when available)
2. Storage backend
3. Optional Neo4j graph export`,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	fmt.Println("gapscan configuration")
	fmt.Println("---------------------")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	homeDir, _ := os.UserHomeDir()
	configPath := filepath.Join(homeDir, ".gapscan", "config.yaml")
	loaded, err := config.Load(configPath)
	if err != nil {
		loaded = config.Default()
	}

	km := config.NewKeyringManager()
	keychainAvailable := km.IsAvailable()
	if !keychainAvailable {
		fmt.Println("OS keychain not available; the API key will be stored in the config file.")
		fmt.Println()
	}

	// Step 1: provider
	fmt.Println("Step 1/3: LLM provider")
	fmt.Print("Provider (openai/gemini/none) [openai]: ")
	provider := readLine(reader)
	if provider == "" {
		provider = "openai"
	}

	if provider == "openai" || provider == "gemini" {
		fmt.Printf("Enter your %s API key (input hidden): ", provider)
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		apiKey := strings.TrimSpace(string(keyBytes))

		if keychainAvailable {
			saveErr := error(nil)
			if provider == "openai" {
				saveErr = km.SaveOpenAIKey(apiKey)
			} else {
				saveErr = km.SaveGeminiKey(apiKey)
			}
			if saveErr != nil {
				fmt.Println("Keychain save failed; storing in config file instead.")
				keychainAvailable = false
			} else {
				fmt.Println("API key stored in OS keychain.")
			}
		}
		if !keychainAvailable {
			if provider == "openai" {
				loaded.API.OpenAIKey = apiKey
			} else {
				loaded.API.GeminiKey = apiKey
			}
		}
		loaded.API.Provider = provider
		loaded.API.UseKeychain = keychainAvailable
	} else {
		loaded.API.Provider = ""
		fmt.Println("No provider configured: extraction requires one; questions will be template-only.")
	}
	fmt.Println()

	// Step 2: storage
	fmt.Println("Step 2/3: Storage backend")
	fmt.Printf("Backend (bolt/sqlite/postgres) [%s]: ", loaded.Storage.Type)
	if backend := readLine(reader); backend != "" {
		loaded.Storage.Type = backend
	}
	if loaded.Storage.Type == "postgres" {
		fmt.Print("Postgres DSN: ")
		loaded.Storage.PostgresDSN = readLine(reader)
	}
	fmt.Println()

	// Step 3: Neo4j
	fmt.Println("Step 3/3: Neo4j graph export (optional)")
	fmt.Print("Export the knowledge graph to Neo4j? (y/N): ")
	if strings.EqualFold(readLine(reader), "y") {
		loaded.Neo4j.Enabled = true
		fmt.Print("Neo4j URI [bolt://localhost:7687]: ")
		if uri := readLine(reader); uri != "" {
			loaded.Neo4j.URI = uri
		} else {
			loaded.Neo4j.URI = "bolt://localhost:7687"
		}
		fmt.Print("Username [neo4j]: ")
		if user := readLine(reader); user != "" {
			loaded.Neo4j.Username = user
		} else {
			loaded.Neo4j.Username = "neo4j"
		}
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		loaded.Neo4j.Password = strings.TrimSpace(string(pwBytes))
	}

	if err := loaded.Save(configPath); err != nil {
		return err
	}
	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	return nil
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
