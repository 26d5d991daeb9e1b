package main

import (
	"fmt"

	"github.com/spf13/cobra"

	annotator "github.com/menta2k/image-annotator"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of image-annotator",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("image-annotator version %s\n", annotator.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
