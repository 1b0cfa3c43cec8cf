package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/hearth/internal/iam"
	"github.com/jbweber/hearth/internal/output"
)

var (
	authProjectDir string
	authEndpoint   string
	authUsername   string
	authForce      bool
	authTTL        int
	authScope      string
	authOutput     string
)

// Authentication commands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate against the IAM endpoint",
	Long: `Obtain, refresh and inspect IAM tokens.

Credentials are stored per project in <project-dir>/.hearth/auth.json,
readable only by the owner.`,
}

func init() {
	authCmd.PersistentFlags().StringVar(&authProjectDir, "project-dir", ".", "Project directory holding the credential")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authMeCmd)
	authCmd.AddCommand(authStatusCmd)

	authLoginCmd.Flags().StringVar(&authEndpoint, "endpoint", "", "IAM endpoint (default from config)")
	authLoginCmd.Flags().StringVarP(&authUsername, "username", "u", "", "User name (prompted if empty)")
	authLoginCmd.Flags().BoolVarP(&authForce, "force", "f", false, "Replace a stored credential")

	authRefreshCmd.Flags().IntVar(&authTTL, "ttl", 0, "Token lifetime in seconds (default: the stored credential's)")
	authRefreshCmd.Flags().StringVar(&authScope, "scope", "", "Token scope (default: the stored credential's)")

	authMeCmd.Flags().StringVarP(&authOutput, "output", "o", "yaml", "Output format (yaml, json)")
}

// newIAMClient builds a client for endpoint and projectID from the IAM
// settings.
func newIAMClient(endpoint, projectID string) (*iam.Client, error) {
	return iam.NewClient(iam.Config{
		Endpoint:     endpoint,
		ProjectID:    projectID,
		ClientID:     settings.IAM.ClientID,
		ClientSecret: settings.IAM.ClientSecret,
		Scope:        settings.IAM.Scope,
		TTL:          settings.IAM.TTL,
		RefreshTTL:   settings.IAM.RefreshTTL,
		Timeout:      settings.IAM.Timeout,
		Logger:       logger,
	})
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with a user name and password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !authForce {
			exists, err := iam.Exists(authProjectDir)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w, use --force to replace it", iam.ErrTokenFileExists)
			}
		}

		endpoint := authEndpoint
		if endpoint == "" {
			endpoint = settings.IAM.Endpoint
		}
		client, err := newIAMClient(endpoint, settings.IAM.ProjectID)
		if err != nil {
			return err
		}

		username := authUsername
		if username == "" {
			if username, err = promptLine("Username: "); err != nil {
				return err
			}
		}
		password, err := promptSecret("Password: ")
		if err != nil {
			return err
		}

		cred, err := client.Authenticate(cmd.Context(), username, password)
		if err != nil {
			return err
		}
		if err := cred.Save(authProjectDir, authForce); err != nil {
			return err
		}

		path, _ := iam.FilePath(authProjectDir)
		fmt.Printf("Logged in to %s, credential saved to %s\n", cred.URL, path)
		return nil
	},
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the stored refresh token for a new credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := iam.Load(authProjectDir)
		if err != nil {
			return err
		}

		client, err := newIAMClient(cred.URL, cred.ProjectID)
		if err != nil {
			return err
		}

		var opts iam.RefreshOptions
		if cmd.Flags().Changed("ttl") {
			opts.TTL = &authTTL
		}
		if cmd.Flags().Changed("scope") {
			opts.Scope = &authScope
		}

		refreshed, err := client.Refresh(cmd.Context(), cred, opts)
		if err != nil {
			return err
		}
		if err := refreshed.Save(authProjectDir, true); err != nil {
			return err
		}

		fmt.Println("Credential refreshed")
		return nil
	},
}

var authMeCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the identity behind the stored token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := iam.Load(authProjectDir)
		if err != nil {
			return err
		}

		client, err := newIAMClient(cred.URL, cred.ProjectID)
		if err != nil {
			return err
		}

		identity, err := client.Identity(cmd.Context(), cred)
		if err != nil {
			return err
		}

		var data []byte
		switch output.Format(authOutput) {
		case output.FormatJSON:
			data, err = json.MarshalIndent(identity, "", "  ")
			data = append(data, '\n')
		default:
			data, err = yaml.Marshal(identity)
		}
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(string(data))
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored credential without contacting IAM",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := iam.Load(authProjectDir)
		if err != nil {
			return err
		}

		fmt.Printf("Endpoint:  %s\n", cred.URL)
		fmt.Printf("Project:   %s\n", valueOr(cred.ProjectID, "-"))
		fmt.Printf("Scope:     %s\n", valueOr(cred.Scope, "-"))

		claims, err := iam.DecodeClaims(cred.Token)
		if err != nil {
			logger.Debug().Err(err).Msg("token claims unavailable")
			fmt.Println("Token:     opaque")
			return nil
		}

		fmt.Printf("Subject:   %s\n", valueOr(claims.Subject, "-"))
		switch {
		case claims.ExpiresAt.IsZero():
			fmt.Println("Expires:   never")
		case claims.Expired(time.Now()):
			fmt.Printf("Expires:   expired %s\n", humanize.Time(claims.ExpiresAt))
		default:
			fmt.Printf("Expires:   %s\n", humanize.Time(claims.ExpiresAt))
		}
		return nil
	},
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
