package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"veritag/internal/config"
	"veritag/internal/infra/db"
	"veritag/internal/infra/feed"
	"veritag/internal/usecase"
)

const version = "1.0.0"

var (
	apiURL   string
	adminKey string
	timeout  time.Duration
)

var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "tagctl",
		Short: "Product tag registry CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("TAGCTL_API_URL")
			}
			if adminKey == "" {
				adminKey = os.Getenv("TAGCTL_ADMIN_KEY")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set TAGCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&adminKey, "admin-key", "", "Admin API key (or set TAGCTL_ADMIN_KEY)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(deactivateCmd())
	rootCmd.AddCommand(reactivateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tagctl version %s\n", version)
		},
	}
}

func registerCmd() *cobra.Command {
	var (
		name           string
		batch          string
		location       string
		manufacturedAt string
		expiresAt      string
		trusted        bool
	)
	cmd := &cobra.Command{
		Use:   "register <identifier>",
		Short: "Register a tag and print its secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			payload := map[string]any{
				"identifier":     args[0],
				"name":           name,
				"batch":          batch,
				"location":       location,
				"trusted_source": trusted,
			}
			if manufacturedAt != "" {
				payload["manufactured_at"] = manufacturedAt
			}
			if expiresAt != "" {
				payload["expires_at"] = expiresAt
			}
			return doAdminRequest(http.MethodPost, "/v1/admin/tags", payload)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Product name")
	cmd.Flags().StringVar(&batch, "batch", "", "Production batch")
	cmd.Flags().StringVar(&location, "location", "", "Production site")
	cmd.Flags().StringVar(&manufacturedAt, "manufactured-at", "", "Manufacture timestamp (RFC 3339)")
	cmd.Flags().StringVar(&expiresAt, "expires-at", "", "Expiry timestamp (RFC 3339)")
	cmd.Flags().BoolVar(&trusted, "trusted", false, "Mark the tag as coming from a trusted source")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <identifier>",
		Short: "Show a registered tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doAdminRequest(http.MethodGet, "/v1/admin/tags/"+args[0], nil)
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <identifier>",
		Short: "Show the scan history of a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doAdminRequest(http.MethodGet, "/v1/admin/tags/"+args[0]+"/history", nil)
		},
	}
}

func deactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <identifier>",
		Short: "Block a tag from verifying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doAdminRequest(http.MethodPost, "/v1/admin/tags/"+args[0]+"/deactivate", struct{}{})
		},
	}
}

func reactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <identifier>",
		Short: "Allow a blocked tag to verify again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doAdminRequest(http.MethodPost, "/v1/admin/tags/"+args[0]+"/reactivate", struct{}{})
		},
	}
}

// importCmd loads a CSV feed straight into the configured store, bypassing
// the API. Intended for batch backfills on the host running the service.
func importCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a registry feed CSV into the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			_ = godotenv.Load()
			cfg := config.FromEnv()
			store, err := db.NewStore(cfg)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			auditRepo := db.NewAuditEventRepository(store.DB)
			importUC := &usecase.ImportFeed{
				Tags:   db.NewTagRepository(store.DB),
				Source: feed.CSVSource{Path: path},
				Audit:  usecase.NewAuditEmitter(auditRepo, usecase.SystemClock{}),
				Clock:  usecase.SystemClock{},
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			summary, err := importUC.Execute(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("imported %d, skipped %d\n", summary.Imported, summary.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "Path to the feed CSV")
	return cmd
}

func doAdminRequest(method, path string, payload any) error {
	if apiURL == "" {
		return fmt.Errorf("--api-url is required (or set TAGCTL_API_URL)")
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if adminKey != "" {
		req.Header.Set("X-Admin-Key", adminKey)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}
