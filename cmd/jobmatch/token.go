package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/jobmatch/internal/server"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the REST API",
	Long: `Signs a token for an operator with JWT_SECRET. The token is valid for
JWT_EXPIRATION_HOURS (default 24) and is sent as "Authorization: Bearer <token>".`,
	RunE: runToken,
}

var (
	tokenSubject string
)

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Operator the token is issued to (required)")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	subject := strings.TrimSpace(tokenSubject)
	if subject == "" {
		return fmt.Errorf("--subject must not be blank")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	jwtCfg, err := cfg.JWT()
	if err != nil {
		return err
	}

	token, err := server.NewJWTService(jwtCfg).GenerateToken(subject)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
