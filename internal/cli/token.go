package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewTokenCmd issues a bearer token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a signed bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret not configured")
			}
			r := domain.Role(role)
			if r != domain.RoleStudent && r != domain.RoleInstructor {
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl == 0 {
				ttl = config.TTLDuration(cfg.Auth.TokenTTL, 8*time.Hour)
			}

			tok, err := transport.NewAuthenticator(cfg.Auth.JWTSecret).Issue(domain.Caller{ID: args[0], Role: r}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "student or instructor")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}
