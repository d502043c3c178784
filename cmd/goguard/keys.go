package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/spf13/cobra"
)

func newKeysCmd(flags *globalFlags) *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage tenant client keys in the configured store",
	}
	keys.AddCommand(newKeysCreateCmd(flags), newKeysListCmd(flags), newKeysRevokeCmd(flags))
	return keys
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newKeysCreateCmd(flags *globalFlags) *cobra.Command {
	var (
		tenant  string
		name    string
		env     string
		domains []string
		routes  []string
		rate    int
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a client key; the plaintext is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" {
				return errors.New("--tenant is required")
			}
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.close()

			opts := goGuard.KeyOptions{
				Environment:        goGuard.KeyEnvironment(env),
				Domains:            domains,
				AllowedRoutes:      routes,
				RateLimitPerMinute: rate,
			}
			if ttl > 0 {
				opts.ExpiresAt = rt.engine.Now().Add(ttl)
			}
			created, err := rt.engine.CreateKey(cmd.Context(), tenant, name, opts)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"key": created.PlaintextKey, "record": created.Record})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "owning tenant id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&env, "env", string(goGuard.KeyEnvironmentTest), "key environment: test|live")
	cmd.Flags().StringSliceVar(&domains, "domain", nil, "allowed origin host, repeatable (*.example.com allowed)")
	cmd.Flags().StringSliceVar(&routes, "route", nil, "allowed path prefix, repeatable")
	cmd.Flags().IntVar(&rate, "rate", 0, "requests per minute (0 uses the configured default)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expire the key after this long")
	return cmd
}

func newKeysListCmd(flags *globalFlags) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" {
				return errors.New("--tenant is required")
			}
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.close()

			keys, err := rt.engine.ListKeys(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			return printJSON(keys)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "owning tenant id")
	return cmd
}

func newKeysRevokeCmd(flags *globalFlags) *cobra.Command {
	var tenant, id string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Deactivate a key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" || id == "" {
				return errors.New("--tenant and --id are required")
			}
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.close()

			ok, err := rt.engine.RevokeKey(cmd.Context(), id, tenant)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no active key %s for tenant %s", id, tenant)
			}
			fmt.Println("revoked")
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "owning tenant id")
	cmd.Flags().StringVar(&id, "id", "", "key id")
	return cmd
}
