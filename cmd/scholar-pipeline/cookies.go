// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scholar-pipeline/internal/scholar"
)

var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Manage the persisted scrape cookie jar",
	Long: `Cookies manages the cookie jar used for scrape requests. Importing
cookies from a browser session helps when the search engine challenges
anonymous requests.`,
}

var cookiesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a browser-exported cookie file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, n, err := scholar.ImportCookies(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d cookies to %s\n", n, path)
		return nil
	},
}

var cookiesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted cookie jar",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := scholar.ClearCookies(); err != nil {
			return err
		}
		fmt.Println("Cookie jar cleared.")
		return nil
	},
}

func init() {
	cookiesCmd.AddCommand(cookiesImportCmd)
	cookiesCmd.AddCommand(cookiesClearCmd)
	rootCmd.AddCommand(cookiesCmd)
}
