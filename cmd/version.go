package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/utxoracle/utxoracled/common"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display utxoracled version",
	Long:  `Display utxoracled version.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("utxoracled version", common.Version)
	},
}
