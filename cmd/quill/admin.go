package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/Quill/internal/auth"
	"github.com/dharsanguruparan/Quill/internal/config"
	"github.com/dharsanguruparan/Quill/internal/database"
	"github.com/dharsanguruparan/Quill/internal/plans"
	"github.com/dharsanguruparan/Quill/internal/repository"
)

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load()
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.Migrate(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var validity time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an API bearer token signed with QUILL_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("QUILL_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("QUILL_JWT_SECRET is not set")
			}
			token, err := auth.GenerateToken(args[0], []byte(secret), validity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&validity, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func newPlansCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Print the plan table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = os.Getenv("QUILL_PLANS_FILE")
			}
			table, err := plans.LoadFile(file)
			if err != nil {
				return err
			}
			return printPlans(cmd, table)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Plans YAML file (defaults to QUILL_PLANS_FILE or built-in plans)")
	return cmd
}

func printPlans(cmd *cobra.Command, table plans.Table) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLAN\tNAME\tPAGES/PDF\tMAX SIZE\tPRICE")
	for _, key := range table.Names() {
		p := table[key]
		fmt.Fprintf(w, "%s\t%s\t%d\t%dMiB\t%v\n", key, p.Name, p.PagesPerPDF, p.MaxFileSize>>20, p.Price)
	}
	return w.Flush()
}

func newSubscribeCmd() *cobra.Command {
	var period time.Duration
	cmd := &cobra.Command{
		Use:   "subscribe <user-id>",
		Short: "Grant a user the pro plan for a period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := database.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			end := time.Now().Add(period)
			if err := repository.NewSubscriptionRepository(pool).SetSubscription(ctx, args[0], end); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s subscribed until %s\n", args[0], end.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&period, "period", 30*24*time.Hour, "Subscription length")
	return cmd
}

func newAskCmd() *cobra.Command {
	var (
		addr   string
		token  string
		fileID string
	)
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a question about an uploaded file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("QUILL_TOKEN")
			}
			body, err := json.Marshal(map[string]string{
				"fileId":  fileID,
				"message": strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, strings.TrimRight(addr, "/")+"/message", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var out struct {
				Answer string `json:"answer"`
				Error  string `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status %d: %s", resp.StatusCode, out.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (defaults to QUILL_TOKEN)")
	cmd.Flags().StringVar(&fileID, "file", "", "File id to chat with")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
