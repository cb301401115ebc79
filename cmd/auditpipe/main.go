package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	serverrun "github.com/dynamisch-arpit/RT-shared-component/internal/cmd/server"
	cfgpkg "github.com/dynamisch-arpit/RT-shared-component/internal/config"
)

func main() {
	// A .env file in the working directory seeds AUDITPIPE_* overrides.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "auditpipe",
		Short: "Audit pipeline CLI",
		Long:  "auditpipe runs the audit event pipeline server and manages queues, tenants, and stored audit trails.",
	}

	rootCmd.AddCommand(newServerCmd())
	rootCmd.AddCommand(newPublishCmd())
	rootCmd.AddCommand(newConsumeCmd())
	rootCmd.AddCommand(newTrailCmd())
	rootCmd.AddCommand(newDLQCmd())
	rootCmd.AddCommand(newPurgeCmd())
	rootCmd.AddCommand(newTenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildLogger(level, format string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q", level)
		}
		lvl = parsed
	}
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func newServerCmd() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the audit pipeline server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			noWorker, _ := cmd.Flags().GetBool("no-worker")

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}

			logger, err := buildLogger(logLevel, logFormat)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return serverrun.Run(cmd.Context(), serverrun.Options{
				Config:        cfg,
				Logger:        logger,
				DisableWorker: noWorker,
			})
		},
	}
	startCmd.Flags().String("config", "", "Path to a JSON config file")
	startCmd.Flags().String("data-dir", "", "Data directory (defaults to the OS application data directory)")
	startCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	startCmd.Flags().String("log-level", os.Getenv("AUDITPIPE_LOG_LEVEL"), "Log level: debug|info|warn|error")
	startCmd.Flags().String("log-format", os.Getenv("AUDITPIPE_LOG_FORMAT"), "Log format: text|json")
	startCmd.Flags().Bool("no-worker", false, "Do not run the in-process consumer")
	serverCmd.AddCommand(startCmd)
	return serverCmd
}

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an audit payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := cmd.Flags().GetString("client")
			file, _ := cmd.Flags().GetString("file")
			payload, err := readPayload(file, args)
			if err != nil {
				return err
			}
			return postRaw("/v1/audit/publish?client_id="+url.QueryEscape(client), payload)
		},
	}
	cmd.Flags().String("client", "", "Tenant client id")
	cmd.Flags().String("file", "", "Payload file (defaults to the first argument, or stdin with -)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func newConsumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Drain queued audit messages once",
		RunE: func(cmd *cobra.Command, args []string) error {
			max, _ := cmd.Flags().GetInt("max")
			return postRaw(fmt.Sprintf("/v1/audit/consume?max=%d", max), nil)
		},
	}
	cmd.Flags().Int("max", 10, "Maximum messages to drain")
	return cmd
}

func newTrailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trail",
		Short: "Show the audit trail for one record",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := cmd.Flags().GetString("client")
			table, _ := cmd.Flags().GetString("table")
			key, _ := cmd.Flags().GetString("key")
			limit, _ := cmd.Flags().GetInt("limit")
			q := url.Values{}
			q.Set("client_id", client)
			q.Set("table", table)
			q.Set("key", key)
			q.Set("limit", fmt.Sprint(limit))
			return getRaw("/v1/audit/trail?" + q.Encode())
		},
	}
	cmd.Flags().String("client", "", "Tenant client id")
	cmd.Flags().String("table", "", "Table name")
	cmd.Flags().String("key", "", "Primary key value")
	cmd.Flags().Int("limit", 100, "Maximum records")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newDLQCmd() *cobra.Command {
	dlqCmd := &cobra.Command{Use: "dlq", Short: "Dead-letter queue operations"}
	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "Reprocess dead-letter messages once",
		RunE: func(cmd *cobra.Command, args []string) error {
			max, _ := cmd.Flags().GetInt("max")
			return postRaw(fmt.Sprintf("/v1/audit/dlq/drain?max=%d", max), nil)
		},
	}
	drainCmd.Flags().Int("max", 10, "Maximum messages to drain")
	dlqCmd.AddCommand(drainCmd)
	return dlqCmd
}

func newPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete audit records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := cmd.Flags().GetString("client")
			days, _ := cmd.Flags().GetInt("days")
			q := url.Values{}
			q.Set("client_id", client)
			q.Set("days", fmt.Sprint(days))
			return postRaw("/v1/audit/cleanup?"+q.Encode(), nil)
		},
	}
	cmd.Flags().String("client", "", "Tenant client id")
	cmd.Flags().Int("days", 0, "Retention window in days (0 uses the server default)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func newTenantCmd() *cobra.Command {
	tenantCmd := &cobra.Command{Use: "tenant", Short: "Tenant configuration operations"}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a tenant's database configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			for flag, key := range map[string]string{
				"client": "clientId", "host": "host", "database": "database",
				"username": "username", "password": "password", "charset": "charset",
			} {
				if v, _ := cmd.Flags().GetString(flag); v != "" {
					body[key] = v
				}
			}
			if port, _ := cmd.Flags().GetInt("port"); port != 0 {
				body["port"] = port
			}
			b, err := json.Marshal(body)
			if err != nil {
				return err
			}
			return postRaw("/v1/tenants/", b)
		},
	}
	setCmd.Flags().String("client", "", "Tenant client id")
	setCmd.Flags().String("host", "", "Database host")
	setCmd.Flags().Int("port", 0, "Database port")
	setCmd.Flags().String("database", "", "Database name")
	setCmd.Flags().String("username", "", "Database username")
	setCmd.Flags().String("password", "", "Database password")
	setCmd.Flags().String("charset", "", "Client encoding")
	_ = setCmd.MarkFlagRequired("client")
	tenantCmd.AddCommand(setCmd)

	invalidateCmd := &cobra.Command{
		Use:   "invalidate <client-id>",
		Short: "Drop cached config and connection for a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postRaw("/v1/tenants/"+url.PathEscape(args[0])+"/invalidate", nil)
		},
	}
	tenantCmd.AddCommand(invalidateCmd)
	return tenantCmd
}

func readPayload(file string, args []string) ([]byte, error) {
	switch {
	case file == "-":
		return io.ReadAll(os.Stdin)
	case file != "":
		return os.ReadFile(file)
	case len(args) > 0:
		return []byte(strings.Join(args, " ")), nil
	}
	return nil, fmt.Errorf("payload required: pass --file or an inline JSON argument")
}

func postRaw(path string, body []byte) error {
	resp, err := http.Post(apiURL()+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func getRaw(path string) error {
	resp, err := http.Get(apiURL() + path)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) > 0 {
		fmt.Println(strings.TrimSpace(string(b)))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server responded %s", resp.Status)
	}
	return nil
}

func apiURL() string {
	if v := os.Getenv("AUDITPIPE_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
