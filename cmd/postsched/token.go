package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"postsched/internal/app"
	"postsched/internal/httpapi"
)

func newTokenCmd() *cobra.Command {
	var (
		owner int64
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an account id (development use)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner <= 0 {
				return errors.New("--owner must be a positive account id")
			}
			_, cfg, err := app.LoadConfig(flagConfig)
			if err != nil {
				return err
			}
			if len(cfg.HTTP.JWTSecret) < 16 {
				return errors.New("http.jwt_secret is not configured")
			}
			if ttl <= 0 {
				if ttl, err = app.TokenTTL(cfg); err != nil {
					return err
				}
			}
			tok, err := httpapi.IssueToken([]byte(cfg.HTTP.JWTSecret), owner, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "account id placed in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default http.token_ttl or 24h)")
	return cmd
}
