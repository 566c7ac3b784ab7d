package cli

import (
	"fmt"

	"github.com/nbarki/shipdesk/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file to edit by hand.
API keys are read from OPENAI_API_KEY or ANTHROPIC_API_KEY when the
file leaves them blank.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	// Keys are left blank on purpose so they stay out of the file;
	// the loader picks them up from the environment at startup.
	cfg := config.DefaultConfig()

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	if cfgFile != "" {
		fmt.Printf("Configuration saved to: %s\n", cfgFile)
	} else {
		fmt.Println("Configuration saved to: $HOME/.shipdesk/shipdesk.json")
	}
	fmt.Println("Start the server with: shipdesk serve")

	return nil
}
