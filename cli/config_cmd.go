package cli

import (
	"fmt"
	"strconv"

	"github.com/buildflame/buildflame/internal/colors"
	"github.com/buildflame/buildflame/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get and set configuration options",
	Long: `Get and set buildflame configuration options.

Configuration can be set at two levels:
- Global (~/.buildflame.json) - applies everywhere
- Directory (./buildflame.json) - applies to the current directory only

Examples:
  buildflame config jenkins.base "https://jenkins.example.com"
  buildflame config --global jenkins.username "deploy-bot"
  buildflame config render.titleparameter "GIT_BRANCH"
  buildflame config --list
  buildflame config jenkins.base`,
	RunE: runConfig,
}

var (
	configGlobal bool
	configList   bool
)

func init() {
	configCmd.Flags().BoolVar(&configGlobal, "global", false, "Use the global config file")
	configCmd.Flags().BoolVar(&configList, "list", false, "List all configuration")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configList {
		return listConfig()
	}

	if len(args) == 1 {
		return getConfigValue(args[0])
	}

	if len(args) == 2 {
		return setConfigValue(args[0], args[1], configGlobal)
	}

	return fmt.Errorf("invalid usage. See: buildflame config --help")
}

func printConfigValue(key, value string) {
	if value == "" {
		fmt.Printf("  %s = %s\n", key, colors.Gray("(not set)"))
	} else {
		fmt.Printf("  %s = %s\n", key, colors.InfoText(value))
	}
}

func listConfig() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(colors.SectionHeader("Jenkins Configuration:"))
	printConfigValue("jenkins.base", cfg.Jenkins.Base)
	printConfigValue("jenkins.username", cfg.Jenkins.Username)
	if cfg.Jenkins.Token != "" {
		fmt.Printf("  jenkins.token = %s\n", colors.InfoText("(set)"))
	} else {
		fmt.Printf("  jenkins.token = %s\n", colors.Gray("(not set)"))
	}
	printConfigValue("jenkins.tokenfile", cfg.Jenkins.TokenFile)
	printConfigValue("jenkins.tokencommand", cfg.Jenkins.TokenCommand)

	fmt.Println()
	fmt.Println(colors.SectionHeader("Data Configuration:"))
	printConfigValue("data.dir", cfg.Data.Dir)

	fmt.Println()
	fmt.Println(colors.SectionHeader("Fetch Configuration:"))
	printConfigValue("fetch.workers", strconv.Itoa(cfg.Fetch.Workers))

	fmt.Println()
	fmt.Println(colors.SectionHeader("Render Configuration:"))
	printConfigValue("render.outputdir", cfg.Render.OutputDir)
	printConfigValue("render.title", cfg.Render.Title)
	printConfigValue("render.titleparameter", cfg.Render.TitleParameter)
	if len(cfg.Render.Colors) == 0 {
		fmt.Printf("  render colors: %s\n", colors.Gray("(default palette)"))
	} else {
		fmt.Printf("  render colors: %d rules\n", len(cfg.Render.Colors))
		for _, rule := range cfg.Render.Colors {
			fmt.Printf("    %s -> %s\n", colors.InfoText(rule.Pattern), rule.Color)
		}
	}

	return nil
}

func getConfigValue(key string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	value, err := config.GetValue(cfg, key)
	if err != nil {
		return err
	}

	if value == "" {
		fmt.Printf("%s is %s\n", key, colors.Gray("(not set)"))
	} else {
		fmt.Println(value)
	}

	return nil
}

func setConfigValue(key, value string, global bool) error {
	if err := config.SetValue(key, value, global); err != nil {
		return err
	}

	scope := "directory"
	if global {
		scope = "global"
	}

	fmt.Printf("%s %s config: %s = %s\n",
		colors.SuccessText("Set"),
		scope,
		colors.Bold(key),
		colors.InfoText(value))

	// Setting a base URL is usually the first step; point at what's next.
	if key == "jenkins.base" {
		fmt.Println()
		fmt.Println(colors.Dim("Hint: check connectivity with:"))
		fmt.Printf("  %s\n", colors.InfoText("buildflame ping"))
	}

	return nil
}
