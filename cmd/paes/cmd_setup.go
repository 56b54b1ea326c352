package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/paespro/lectoguia/internal/config"
)

// cmdInit prepares ~/.paespro for first use
func cmdInit() error {
	fmt.Println("PAES Pro - Configuración inicial")
	fmt.Println("================================")
	fmt.Println()

	fmt.Print("Creating ~/.paespro directory structure... ")
	dir, err := config.EnsurePaesDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	fmt.Println()
	fmt.Printf("Copy official exam packs (<CODE>.yaml) into %s\n", filepath.Join(dir, "exams"))
	fmt.Println("Without them every exercise is generated by the LLM provider.")
	fmt.Println()

	cfg, _ := config.LoadLocalConfig()
	if cfg != nil && slices.ContainsFunc([]string{"openai", "claude", "gemini"}, func(name string) bool { return hasKey(cfg, name) }) {
		fmt.Println("LLM API key: already configured ✓")
	} else {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Enter OpenAI API key (or press Enter to skip): ")
		key, _ := reader.ReadString('\n')
		if key = strings.TrimSpace(key); key != "" {
			if err := config.SaveSecrets(map[string]string{"openai": key}); err != nil {
				fmt.Printf("  ⚠ Failed to save: %v\n", err)
			} else {
				fmt.Println("  ✓ Saved")
			}
		}
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. paes start       # Start the daemon")
	fmt.Println("  2. paes subject     # Check the active subject")
	fmt.Println("  3. paes practice    # Get your first exercise")
	return nil
}

func hasKey(cfg *config.LocalConfig, name string) bool {
	p := cfg.LLM.Providers[name]
	return p != nil && p.APIKey != ""
}

// cmdConfig shows current configuration
func cmdConfig() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("PAES Pro Configuration")

	fmt.Println("Daemon:")
	fmt.Printf("  bind: %s\n", cfg.Addr())
	fmt.Printf("  log_level: %s\n", cfg.Daemon.LogLevel)

	fmt.Println("\nLLM:")
	fmt.Printf("  default_provider: %s\n", cfg.LLM.DefaultProvider)
	for _, name := range providerNames(cfg) {
		p := cfg.LLM.Providers[name]
		if !p.Enabled {
			continue
		}
		keyStatus := "✗"
		if p.APIKey != "" || name == "ollama" {
			keyStatus = "✓"
		}
		fmt.Printf("  %s: model=%s key=%s\n", name, p.Model, keyStatus)
	}

	fmt.Println("\nSourcing:")
	fmt.Printf("  generation_timeout: %s\n", cfg.Sourcing.GenerationTimeout)
	fmt.Printf("  deltas: +%.2f / -%.2f (initial %.2f)\n",
		cfg.Sourcing.CorrectDelta, cfg.Sourcing.IncorrectDelta, cfg.Sourcing.InitialLevel)
	fmt.Printf("  exams_path: %s\n", cfg.Content.ExamsPath)

	fmt.Println("\nStorage:")
	fmt.Printf("  driver: %s\n", cfg.Storage.Driver)
	if cfg.Storage.Driver == "sqlite" {
		fmt.Printf("  sqlite_path: %s\n", cfg.Storage.SQLitePath)
	}
	fmt.Printf("  queue: %t\n", cfg.Queue.Enabled)
	if cfg.Notify.RedisAddr != "" {
		fmt.Printf("  notifications: redis %s (%s)\n", cfg.Notify.RedisAddr, cfg.Notify.Channel)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("\n⚠ %v\n", err)
	}
	return nil
}

func providerNames(cfg *config.LocalConfig) []string {
	names := make([]string, 0, len(cfg.LLM.Providers))
	for name := range cfg.LLM.Providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// cmdProvider manages LLM provider API keys
func cmdProvider(args []string) error {
	if len(args) < 1 {
		fmt.Println(`Provider management commands:

  paes provider list              List configured providers
  paes provider set-key <name>    Set API key for a provider`)
		return nil
	}

	switch args[0] {
	case "list":
		return cmdProviderList()
	case "set-key":
		if len(args) < 2 {
			return fmt.Errorf("provider name required")
		}
		return cmdProviderSetKey(args[1])
	default:
		return fmt.Errorf("unknown provider command: %s", args[0])
	}
}

func cmdProviderList() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Configured LLM Providers:")
	for _, name := range providerNames(cfg) {
		p := cfg.LLM.Providers[name]
		status := "disabled"
		if p.Enabled {
			if p.APIKey != "" || name == "ollama" {
				status = "ready"
			} else {
				status = "needs API key"
			}
		}

		isDefault := ""
		if name == cfg.LLM.DefaultProvider {
			isDefault = " (default)"
		}

		fmt.Printf("  %s%s\n", name, isDefault)
		fmt.Printf("    status: %s\n", status)
		fmt.Printf("    model:  %s\n", p.Model)
		if name == "ollama" && p.URL != "" {
			fmt.Printf("    url:    %s\n", p.URL)
		}
		fmt.Println()
	}
	return nil
}

func cmdProviderSetKey(provider string) error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, ok := cfg.LLM.Providers[provider]; !ok {
		return fmt.Errorf("unknown provider: %s (valid: %s)", provider, strings.Join(providerNames(cfg), ", "))
	}
	if provider == "ollama" {
		fmt.Println("Ollama doesn't require an API key.")
		return nil
	}

	fmt.Printf("Enter %s API key: ", provider)
	key, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	// keep the keys of the other providers
	secrets := map[string]string{provider: key}
	for _, name := range providerNames(cfg) {
		if name != provider && cfg.LLM.Providers[name].APIKey != "" {
			secrets[name] = cfg.LLM.Providers[name].APIKey
		}
	}
	if err := config.SaveSecrets(secrets); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}

	fmt.Printf("✓ API key saved for %s\n", provider)
	fmt.Println("Restart the daemon for changes to take effect.")
	return nil
}
