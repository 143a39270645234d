package cli

import (
	"fmt"
	"os"

	"github.com/buildflame/buildflame/internal/cache"
	"github.com/buildflame/buildflame/internal/colors"
	"github.com/buildflame/buildflame/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "buildflame",
	Short: "Flamecharts for Jenkins pipeline builds",
	Long: `Buildflame fetches pipeline step data from Jenkins, reconstructs each
build's execution timeline, and renders the result as an HTML flamechart.

Fetch builds first, then render them:

  buildflame fetch ci/deploy:1234
  buildflame render ci/deploy:1234 --open`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor {
			colors.SetColorEnabled(false)
		}
	},
}

var (
	flagConfig      string
	flagDataDir     string
	flagJenkinsBase string
	flagUsername    string
	flagToken       string
	flagNoColor     bool
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default ./buildflame.json, then ~/.buildflame.json)")
	pf.StringVar(&flagDataDir, "data-dir", "", "Cache directory (default ~/.buildflame)")
	pf.StringVar(&flagJenkinsBase, "jenkins-base", "", "Jenkins base URL")
	pf.StringVar(&flagUsername, "username", "", "Jenkins username")
	pf.StringVar(&flagToken, "token", "", "Jenkins API token")
	pf.BoolVar(&flagNoColor, "no-color", false, "Disable colored output")

	// Jenkins commands
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(pingCmd)

	// Local commands
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd, cacheRmCmd, cacheClearCmd, cacheExportCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig merges the config files and applies root-flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.Data.Dir = flagDataDir
	}
	if flagJenkinsBase != "" {
		cfg.Jenkins.Base = flagJenkinsBase
	}
	if flagUsername != "" {
		cfg.Jenkins.Username = flagUsername
	}
	if flagToken != "" {
		cfg.Jenkins.Token = flagToken
	}
	return cfg, nil
}

func openCache(cfg *config.Config) (*cache.Cache, error) {
	c, err := cache.Open(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache in %s: %w", cfg.Data.Dir, err)
	}
	return c, nil
}
