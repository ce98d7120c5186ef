package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/app"
	"github.com/atvirokodosprendimai/storefront/internal/config"
	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/atvirokodosprendimai/storefront/internal/core/usecase"
	"github.com/atvirokodosprendimai/storefront/internal/logging"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "storefront",
		Usage: "Multi-tenant storefront tenant registry and API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Sources: cli.EnvVars("DATABASE_URL"),
				Usage:   "Postgres DSN of the registry database",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			tenantCommand(),
			keyCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if dsn := c.String("database-url"); dsn != "" {
		cfg.DatabaseURL = dsn
	}
	return cfg, nil
}

// withApp opens the registry for one command and closes it afterwards.
func withApp(ctx context.Context, c *cli.Command, fn func(*app.App) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("close resources", zap.Error(closeErr))
		}
	}()
	return fn(a)
}

func cliMetadata() domain.MutationMetadata {
	return domain.MutationMetadata{Actor: "operator", Source: "cli"}.Normalize()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and metrics servers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (overrides HTTP_ADDR)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Metrics listen address (overrides METRICS_ADDR)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if addr := c.String("addr"); addr != "" {
				cfg.HTTPAddr = addr
			}
			if addr := c.String("metrics-addr"); addr != "" {
				cfg.MetricsAddr = addr
			}

			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create app: %w", err)
			}
			defer func() {
				if closeErr := a.Close(); closeErr != nil {
					logger.Warn("close resources", zap.Error(closeErr))
				}
			}()
			return a.Serve(ctx)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply shared-partition migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			version, err := app.Migrate(ctx, cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.Root().Writer, "migrated to version %d\n", version)
			return err
		},
	}
}

func tenantCommand() *cli.Command {
	return &cli.Command{
		Name:  "tenant",
		Usage: "Manage tenants",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Register a tenant and provision its partition",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "Display name; the partition is derived from it"},
					&cli.StringFlag{Name: "domain", Usage: "Custom domain"},
					&cli.StringFlag{Name: "subdomain", Usage: "Development subdomain label"},
					&cli.StringFlag{Name: "plan", Value: string(domain.PlanFree), Usage: "free, basic, pro or enterprise"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(a *app.App) error {
						tenant, err := a.Tenants.Create(ctx, domain.NewTenant{
							Name:      c.String("name"),
							Domain:    c.String("domain"),
							Subdomain: c.String("subdomain"),
							Plan:      c.String("plan"),
						}, cliMetadata())
						if err != nil {
							return err
						}
						return printJSON(c.Root().Writer, map[string]any{
							"id":          tenant.ID.String(),
							"name":        tenant.Name,
							"schema_name": tenant.Partition.Name(),
							"plan_type":   tenant.Plan,
						})
					})
				},
			},
			{
				Name:  "list",
				Usage: "List active tenants",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(a *app.App) error {
						summaries, err := a.Tenants.ListActive(ctx)
						if err != nil {
							return err
						}
						for _, s := range summaries {
							if _, err := fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\tkeys=%d\n", s.ID, s.Name, s.Partition, s.ActiveKeys); err != nil {
								return err
							}
						}
						return nil
					})
				},
			},
			{
				Name:      "deactivate",
				Usage:     "Deactivate a tenant; its partition is kept",
				ArgsUsage: "<tenant-id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(a *app.App) error {
						tenant, err := a.Tenants.Deactivate(ctx, c.Args().First(), cliMetadata())
						if err != nil {
							return err
						}
						_, err = fmt.Fprintf(c.Root().Writer, "deactivated %s (%s)\n", tenant.Name, tenant.ID)
						return err
					})
				},
			},
		},
	}
}

func keyCommand() *cli.Command {
	return &cli.Command{
		Name:  "key",
		Usage: "Manage tenant API keys",
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Issue an API key; the secret is printed once",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant-id", Usage: "Owning tenant id"},
					&cli.StringFlag{Name: "tenant-name", Usage: "Owning tenant name"},
					&cli.StringFlag{Name: "name", Usage: "Key name"},
					&cli.StringSliceFlag{Name: "permission", Usage: "Permission label, repeatable"},
					&cli.IntFlag{Name: "expires-in-days", Value: -1, Usage: "Days until expiry, 0 for never; default from API_KEY_DEFAULT_TTL"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					expiresIn := cfg.DefaultKeyTTL
					if days := c.Int("expires-in-days"); days >= 0 {
						expiresIn = time.Duration(days) * 24 * time.Hour
					}
					return withApp(ctx, c, func(a *app.App) error {
						issued, err := a.Auth.Issue(ctx, usecase.IssueKeyInput{
							TenantID:    c.String("tenant-id"),
							TenantName:  c.String("tenant-name"),
							Name:        c.String("name"),
							Permissions: c.StringSlice("permission"),
							ExpiresIn:   expiresIn,
						}, cliMetadata())
						if err != nil {
							return err
						}
						out := map[string]any{
							"id":          issued.Key.ID.String(),
							"tenant_name": issued.Tenant.Name,
							"prefix":      issued.Key.Prefix,
							"key":         issued.Secret,
						}
						if issued.Key.ExpiresAt != nil {
							out["expires_at"] = issued.Key.ExpiresAt.Format(time.RFC3339)
						}
						return printJSON(c.Root().Writer, out)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List key metadata for a tenant",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant-id"},
					&cli.StringFlag{Name: "tenant-name"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(a *app.App) error {
						_, keys, err := a.Credentials.List(ctx, c.String("tenant-id"), c.String("tenant-name"))
						if err != nil {
							return err
						}
						for _, k := range keys {
							if _, err := fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\tactive=%t\tuses=%d\n", k.ID, k.Prefix, k.Name, k.Active, k.UsageCount); err != nil {
								return err
							}
						}
						return nil
					})
				},
			},
			{
				Name:      "revoke",
				Usage:     "Revoke an API key",
				ArgsUsage: "<key-id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(a *app.App) error {
						key, err := a.Credentials.Revoke(ctx, c.Args().First(), cliMetadata())
						if err != nil {
							return err
						}
						_, err = fmt.Fprintf(c.Root().Writer, "revoked %s (%s)\n", key.ID, key.Prefix)
						return err
					})
				},
			},
		},
	}
}
