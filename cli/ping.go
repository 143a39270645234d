package cli

import (
	"fmt"

	"github.com/buildflame/buildflame/internal/colors"
	"github.com/buildflame/buildflame/internal/jenkins"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the Jenkins connection and credentials",
	Args:  cobra.NoArgs,
	RunE:  runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := jenkins.NewClient(cfg.Jenkins)
	if err != nil {
		return err
	}

	if err := client.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("jenkins is not reachable: %w", err)
	}
	fmt.Println(colors.SuccessText("Jenkins is reachable"))
	return nil
}
