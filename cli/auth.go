package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/buildflame/buildflame/internal/colors"
	"github.com/buildflame/buildflame/internal/config"
	"github.com/buildflame/buildflame/internal/jenkins"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Jenkins credentials",
	Long:  `Store, check and remove the Jenkins credentials buildflame uses.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store Jenkins credentials",
	Long: `Prompt for a Jenkins username and API token, verify them against the
server, and save them to the global config file.

Create an API token under your Jenkins user profile (Configure > API
Token); account passwords do not work with the Jenkins REST API.`,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored Jenkins API token",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credentials are in use",
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("login needs a terminal; set jenkins.token in the config instead")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reader := bufio.NewReader(os.Stdin)

	base := cfg.Jenkins.Base
	if base == "" {
		fmt.Print("Jenkins URL: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		base = strings.TrimSpace(line)
	}

	fmt.Printf("Username [%s]: ", cfg.Jenkins.Username)
	line, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	username := strings.TrimSpace(line)
	if username == "" {
		username = cfg.Jenkins.Username
	}
	if username == "" {
		return fmt.Errorf("a username is required; anonymous access needs no login")
	}

	fmt.Print("API token (input hidden): ")
	tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(string(tokenBytes))
	if token == "" {
		return fmt.Errorf("no token given")
	}

	// Verify against the server before saving anything.
	client, err := jenkins.NewClient(config.JenkinsConfig{
		Base:     base,
		Username: username,
		Token:    token,
	})
	if err != nil {
		return err
	}
	if err := client.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("credentials were not saved: %w", err)
	}

	if err := config.SetValue("jenkins.base", base, true); err != nil {
		return err
	}
	if err := config.SetValue("jenkins.username", username, true); err != nil {
		return err
	}
	if err := config.SetValue("jenkins.token", token, true); err != nil {
		return err
	}

	fmt.Printf("%s as %s\n", colors.SuccessText("Logged in"), colors.Bold(username))
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	if err := config.SetValue("jenkins.token", "", true); err != nil {
		return err
	}
	fmt.Println(colors.SuccessText("Removed the stored API token"))
	fmt.Println(colors.Dim("jenkins.tokenfile and jenkins.tokencommand, if set, still apply"))
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Jenkins.Base == "" {
		fmt.Println("No Jenkins server configured")
		fmt.Println("\nTo get started, run:")
		fmt.Println("  buildflame auth login")
		fmt.Println("\nor set the server directly:")
		fmt.Println("  buildflame config jenkins.base \"https://jenkins.example.com\"")
		return nil
	}
	fmt.Printf("Server: %s\n", colors.InfoText(cfg.Jenkins.Base))

	source := jenkins.TokenSource(cfg.Jenkins)
	switch {
	case cfg.Jenkins.Username == "":
		fmt.Println("Access: anonymous (no username configured)")
	case source == "":
		fmt.Printf("Access: user %s, but no token source\n", colors.Bold(cfg.Jenkins.Username))
		fmt.Println("\nTo store a token, run:")
		fmt.Println("  buildflame auth login")
		return nil
	default:
		fmt.Printf("Access: user %s via %s\n", colors.Bold(cfg.Jenkins.Username), source)
	}

	client, err := jenkins.NewClient(cfg.Jenkins)
	if err != nil {
		return err
	}
	if err := client.Ping(cmd.Context()); err != nil {
		fmt.Printf("\n%s %v\n", colors.FailedPrefix(), err)
		fmt.Println(colors.Dim("The server rejected the credentials or is unreachable."))
		return nil
	}
	fmt.Println(colors.SuccessText("Jenkins is reachable"))
	return nil
}
