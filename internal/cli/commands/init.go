package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"c4ghfs/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	Long: `Create the c4ghfs configuration directory (C4GHFS_CONFIG_DIR, or ~/.c4ghfs)
and write a default settings.yaml into it. An existing file is left untouched.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := config.InitConfigDir()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Settings: %s\n", path)
	return nil
}
