package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/momosync/momosync/internal/plugins"
	"github.com/momosync/momosync/pkg/client"
	"github.com/momosync/momosync/pkg/config"
)

var errNotReady = errors.New("configuration issues detected")

func newStatusCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check configuration and credentials without running the pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := newRegistry()
			if err != nil {
				return err
			}
			return checkStatus(cmd.OutOrStdout(), registry, configPath, client.TokenFile)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a JSON config file (default momosync.json if present)")

	return cmd
}

func checkStatus(w io.Writer, registry *plugins.Registry, configPath, tokenFile string) error {
	allGood := true
	check := func(label string, err error, ok string) {
		if err != nil {
			fmt.Fprintf(w, "%s: ✗ %v\n", label, err)
			allGood = false
			return
		}
		fmt.Fprintf(w, "%s: ✓ %s\n", label, ok)
	}

	cfg, err := config.Load(configPath)
	check("Configuration", err, "loaded")
	if err != nil {
		return errNotReady
	}

	_, err = registry.GetReader(cfg.ReaderPlugin)
	check("Reader", err, cfg.ReaderPlugin)
	_, err = registry.GetWriter(cfg.WriterPlugin)
	check("Writer", err, cfg.WriterPlugin)
	fmt.Fprintf(w, "Currency: %s, country code: +%s\n", cfg.Currency, cfg.CountryCode)

	scopes, err := registry.GetAllScopes(cfg.ReaderPlugin, cfg.WriterPlugin)
	if err == nil && len(scopes) > 0 {
		_, err := os.Stat(cfg.ClientSecretFile)
		check("Client secret ("+cfg.ClientSecretFile+")", err, "found")

		token, err := readToken(tokenFile)
		expiry := "valid"
		if err == nil && !token.Expiry.IsZero() {
			if token.Expiry.Before(time.Now()) {
				expiry = "expired (will refresh on next run)"
			} else {
				expiry = "valid until " + token.Expiry.Format(time.RFC3339)
			}
		}
		check("OAuth token ("+tokenFile+")", err, expiry)
	}

	if !allGood {
		fmt.Fprintln(w, "Status: ✗ fix the issues above, then run 'momosync status' again")
		return errNotReady
	}
	fmt.Fprintln(w, "Status: ✓ ready to run")
	return nil
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("not found (a browser sign-in starts on the next run)")
		}
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, errors.New("invalid format")
	}
	return &token, nil
}
