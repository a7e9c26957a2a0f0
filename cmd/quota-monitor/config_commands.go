package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/0xmhha/quota-monitor/pkg/config"
)

// configCommand manages configuration.
type configCommand struct {
	configPath string
}

// Execute runs the config subcommand.
func (c *configCommand) Execute(args []string) error {
	if len(args) == 0 {
		return c.show()
	}

	switch args[0] {
	case "show":
		return c.show()
	case "path":
		return c.path()
	case "init":
		return c.init()
	default:
		return fmt.Errorf("unknown config subcommand: %s (want show, path, or init)", args[0])
	}
}

// show prints the effective configuration as YAML.
func (c *configCommand) show() error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

// path prints the config file location in use.
func (c *configCommand) path() error {
	if c.configPath != "" {
		fmt.Println(c.configPath)
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to determine home directory: %w", err)
	}
	fmt.Println(filepath.Join(home, ".config", "quota-monitor", "config.yaml"))
	return nil
}

// init writes the default configuration file, refusing to overwrite.
func (c *configCommand) init() error {
	path := c.configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to determine home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "quota-monitor", "config.yaml")
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := config.Save(config.Default(), path); err != nil {
		return err
	}

	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}
