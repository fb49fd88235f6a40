package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"agentic-workflow/internal/infra/api"
)

var tokenOwner string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API token for an owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenOwner == "" {
			return errors.New("--owner is required")
		}
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		tok, err := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL).Mint(tokenOwner)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOwner, "owner", "", "owner id placed in the token subject")
}
