package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/arcfetch/internal/config"
	"github.com/tanq16/arcfetch/internal/output"
	"github.com/tanq16/arcfetch/internal/utils"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the config file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a config file by answering a few questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := config.Default()
			if utils.FileExists(configPath) {
				loaded, err := config.LoadFromFile(configPath)
				if err != nil {
					return err
				}
				base = loaded
				output.PrintInfo(fmt.Sprintf("Editing existing %s, press enter to keep a value", configPath))
			}
			prompter := config.NewPrompter(os.Stdin, os.Stdout)
			if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
				prompter.ReadSecret = func() (string, error) {
					b, err := term.ReadPassword(fd)
					return string(b), err
				}
			}
			cfg, err := prompter.Run(base)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(configPath); err != nil {
				return err
			}
			output.PrintSuccess(fmt.Sprintf("Config written to %s", configPath))
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}
