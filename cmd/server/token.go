package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/owleye/internal/config"
	"github.com/iliyamo/owleye/internal/model"
	"github.com/iliyamo/owleye/internal/utils"
)

// newTokenCmd mints access tokens for local testing against a server that
// shares JWT_SECRET.  Production identities come from the identity service.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed access token for development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sub, _ := cmd.Flags().GetUint64("sub")
			role, _ := cmd.Flags().GetString("role")
			name, _ := cmd.Flags().GetString("name")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if sub == 0 {
				return fmt.Errorf("--sub must be a positive user id")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := utils.NewAccessToken(cfg.JWTSecret, model.Identity{
				ID:   sub,
				Role: model.Role(strings.ToUpper(role)),
				Name: name,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().Uint64("sub", 0, "User id carried in the sub claim")
	cmd.Flags().String("role", string(model.RoleAttendee), "Role claim (ORGANIZER, STAFF, ATTENDEE, VOLUNTEER, AUTHORITY)")
	cmd.Flags().String("name", "", "Optional display name")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}
