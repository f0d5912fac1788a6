package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cmdVersion = &cobra.Command{
	Use:   "version",
	Short: "version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmdReadease.Version)
	},
}

func init() {
	cmdReadease.AddCommand(cmdVersion)
}
