package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"collection-sync/internal/auth"
	"collection-sync/internal/config"
	"collection-sync/internal/transport"
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Authorize read access to Google Sheets",
	Long: `Run the OAuth consent flow for Google Sheets and store the token.

Open the printed URL, grant access and paste back either the code or the
full URL the browser was redirected to. The token is written to
google.token_file and refreshed automatically on later runs.

Client credentials passed as flags are saved to the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		changed := false
		for flag, dst := range map[string]*string{
			"client-id":     &cfg.Google.ClientID,
			"client-secret": &cfg.Google.ClientSecret,
			"redirect-url":  &cfg.Google.RedirectURL,
		} {
			if cmd.Flags().Changed(flag) {
				*dst, _ = cmd.Flags().GetString(flag)
				changed = true
			}
		}
		if cfg.Google.ClientID == "" {
			return errors.New("google.client_id is not set (pass --client-id)")
		}

		hc, _ := transport.NewClient(cfg.TransportOptions(), cfg.HTTPTimeout)
		ctx := context.WithValue(cmd.Context(), oauth2.HTTPClient, hc)
		oc := auth.NewGoogleProvider(auth.OAuthConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		})
		tok, err := auth.Authorize(ctx, oc, stdinPrompt(cmd.InOrStdin(), cmd.OutOrStdout()))
		if err != nil {
			return err
		}
		if err := (auth.FileStore{Path: cfg.Google.TokenFile}).Save(tok); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
		if changed {
			if err := config.Save(cfgFile, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Authorized. Token stored in %s\n", cfg.Google.TokenFile)
		return nil
	},
}

func init() {
	authorizeCmd.Flags().String("client-id", "", "OAuth client ID")
	authorizeCmd.Flags().String("client-secret", "", "OAuth client secret")
	authorizeCmd.Flags().String("redirect-url", "", "Redirect URL registered for the client")
	rootCmd.AddCommand(authorizeCmd)
}

func stdinPrompt(in io.Reader, out io.Writer) auth.Prompt {
	return func(authURL string) (string, error) {
		fmt.Fprintf(out, "Open this URL in your browser and grant access:\n\n  %s\n\nPaste the code or the redirected URL: ", authURL)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}
