package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shoppingmall/mall/internal/client"
	"github.com/shoppingmall/mall/internal/config"
	"github.com/shoppingmall/mall/internal/logging"
	"github.com/shoppingmall/mall/internal/session"
	"github.com/shoppingmall/mall/pkg/output"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the storefront",
	Long:  "Authenticate with email and password and save the session tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if email == "" {
			return fmt.Errorf("email is required")
		}
		if password == "" {
			return fmt.Errorf("password is required")
		}

		if err := saveBaseURL(cmd); err != nil {
			return err
		}

		s, release, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer release()

		res, err := s.Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}
		if err := authFailure(res, "login failed"); err != nil {
			return err
		}

		if err := makeCurrent(profileName(cmd)); err != nil {
			output.Warn("Failed to set current profile: %v", err)
		}

		if jsonOutput(cmd) {
			return output.JSON(res.User)
		}
		output.Success("Logged in as %s", displayName(res.User, email))
		output.Info("Profile '%s' saved", profileName(cmd))
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a storefront account",
	Long:  "Register a new account and log in with it",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := client.RegisterRequest{}
		req.Email, _ = cmd.Flags().GetString("email")
		req.Username, _ = cmd.Flags().GetString("username")
		req.FirstName, _ = cmd.Flags().GetString("first-name")
		req.LastName, _ = cmd.Flags().GetString("last-name")
		req.PhoneNumber, _ = cmd.Flags().GetString("phone")
		req.DateOfBirth, _ = cmd.Flags().GetString("birth-date")

		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if req.Email == "" || req.Username == "" || password == "" {
			return fmt.Errorf("email, username and password are required")
		}
		req.Password = password
		req.PasswordConfirm = password

		if err := saveBaseURL(cmd); err != nil {
			return err
		}

		s, release, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer release()

		res, err := s.Register(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}
		if err := authFailure(res, "registration failed"); err != nil {
			return err
		}

		if err := makeCurrent(profileName(cmd)); err != nil {
			output.Warn("Failed to set current profile: %v", err)
		}

		if jsonOutput(cmd) {
			return output.JSON(res.User)
		}
		output.Success("Account created for %s", displayName(res.User, req.Email))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out from the storefront",
	Long:  "Revoke the refresh token and remove the stored session. With --forget the profile is deleted from the config as well.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, release, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer release()

		profile := profileName(cmd)
		if err := s.Logout(cmd.Context()); err != nil {
			return err
		}
		output.Success("Logged out from profile '%s'", profile)

		if forget, _ := cmd.Flags().GetBool("forget"); forget {
			if err := cfg.RemoveProfile(profile); err != nil && !errors.Is(err, config.ErrProfileNotFound) {
				return fmt.Errorf("failed to remove profile: %w", err)
			}
			output.Info("Profile '%s' removed", profile)
		}
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Display current user information",
	Long:  "Fetch the authenticated user from the storefront",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, release, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer release()

		user, err := s.FetchUser(cmd.Context())
		if errors.Is(err, session.ErrNotAuthenticated) {
			return fmt.Errorf("not logged in, please run 'mall login'")
		}
		if err != nil {
			return err
		}

		if jsonOutput(cmd) {
			return output.JSON(user)
		}

		output.Info("Profile:  %s", profileName(cmd))
		output.Info("User ID:  %d", user.ID)
		output.Info("Email:    %s", user.Email)
		output.Info("Username: %s", user.Username)
		if name := strings.TrimSpace(user.FirstName + " " + user.LastName); name != "" {
			output.Info("Name:     %s", name)
		}
		return nil
	},
}

type statusInfo struct {
	Profile       string     `json:"profile"`
	BaseURL       string     `json:"base_url"`
	TokenStore    string     `json:"token_store"`
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"user_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Expired       bool       `json:"expired"`
	HasRefresh    bool       `json:"has_refresh_token"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local session state",
	Long:  "Show whether tokens are stored and when the access token expires, without contacting the storefront",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, release, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer release()

		ctx := cmd.Context()
		profile := profileName(cmd)
		info := statusInfo{
			Profile:       profile,
			BaseURL:       cfg.BaseURL(profile),
			TokenStore:    cfg.TokenStore.Backend,
			Authenticated: s.IsAuthenticated(ctx),
		}

		pair, err := s.Tokens(ctx)
		if err != nil {
			return err
		}
		info.HasRefresh = pair.Refresh != ""

		if tok, err := s.AccessTokenInfo(ctx); err == nil {
			info.UserID = tok.UserID
			if !tok.ExpiresAt.IsZero() {
				exp := tok.ExpiresAt
				info.ExpiresAt = &exp
			}
			info.Expired = tok.Expired(time.Now())
		} else if !errors.Is(err, session.ErrNotAuthenticated) {
			logger.DebugContext(ctx, "access token is not a readable JWT", logging.Error(err))
		}

		if jsonOutput(cmd) {
			return output.JSON(info)
		}

		output.Info("Profile:     %s", info.Profile)
		output.Info("Backend:     %s", info.BaseURL)
		output.Info("Token store: %s", info.TokenStore)
		if !info.Authenticated {
			output.Warn("Not logged in")
			return nil
		}
		output.Success("Logged in")
		if info.UserID != "" {
			output.Info("User ID:     %s", info.UserID)
		}
		if info.ExpiresAt != nil {
			state := "valid"
			if info.Expired {
				state = "expired, will refresh on next request"
			}
			output.Info("Access token expires %s (%s)", info.ExpiresAt.Local().Format(time.RFC3339), state)
		}
		if !info.HasRefresh {
			output.Warn("No refresh token stored")
		}
		return nil
	},
}

// readPassword takes --password, or one line of stdin with --password-stdin.
func readPassword(cmd *cobra.Command) (string, error) {
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	if !fromStdin {
		password, _ := cmd.Flags().GetString("password")
		return password, nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// saveBaseURL stores --base-url on the profile before authenticating.
func saveBaseURL(cmd *cobra.Command) error {
	if !cmd.Flags().Changed("base-url") {
		return nil
	}
	baseURL, _ := cmd.Flags().GetString("base-url")
	return cfg.UpdateProfile(profileName(cmd), func(p *config.Profile) {
		p.BaseURL = baseURL
	})
}

func makeCurrent(profile string) error {
	if cfg.CurrentProfile == profile {
		return nil
	}
	cfg.CurrentProfile = profile
	return cfg.Save()
}

func authFailure(res *session.AuthResult, msg string) error {
	if res.Success {
		return nil
	}
	output.FieldErrors(res.Errors.Keys(), res.Errors)
	return errors.New(msg)
}

func displayName(u *session.User, fallback string) string {
	if u == nil {
		return fallback
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(statusCmd)

	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringP("email", "e", "", "Account email")
		c.Flags().StringP("password", "p", "", "Password")
		c.Flags().Bool("password-stdin", false, "Read the password from stdin")
		c.Flags().String("base-url", "", "Storefront API URL to save on the profile")
	}
	loginCmd.MarkFlagRequired("email")

	logoutCmd.Flags().Bool("forget", false, "Also delete the profile from the config")

	registerCmd.Flags().StringP("username", "u", "", "Username")
	registerCmd.Flags().String("first-name", "", "First name")
	registerCmd.Flags().String("last-name", "", "Last name")
	registerCmd.Flags().String("phone", "", "Phone number")
	registerCmd.Flags().String("birth-date", "", "Date of birth (YYYY-MM-DD)")
}
