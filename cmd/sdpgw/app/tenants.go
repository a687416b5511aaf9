// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	sdpconfig "github.com/PTTG-IT/SDP-MCP-sub003/pkg/config"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/secrets"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/tenant"
)

func newTenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage registered tenants",
	}
	cmd.AddCommand(newTenantsRegisterCmd())
	cmd.AddCommand(newTenantsListCmd())
	cmd.AddCommand(newTenantsSuspendCmd())
	cmd.AddCommand(newTenantsActivateCmd())
	return cmd
}

type registerFlags struct {
	name             string
	region           string
	tier             string
	instanceURL      string
	scopes           []string
	clientID         string
	clientSecret     string
	refreshToken     string
	clientSecretFrom string
	refreshTokenFrom string
}

func newTenantsRegisterCmd() *cobra.Command {
	f := &registerFlags{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new tenant and print its gateway API key",
		Long: `Register validates and persists a new tenant's OAuth credentials, then
generates a random API key for it. The key is never stored by the
gateway - copy it from the command output and add it to the api_keys
list in the gateway's configuration, since that allow-list is what the
SSE endpoint actually checks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTenantsRegister(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.name, "name", "", "unique tenant name (required)")
	cmd.Flags().StringVar(&f.region, "region", "", "tenant region, e.g. us-east, us-west, eu (required)")
	cmd.Flags().StringVar(&f.tier, "tier", string(store.TierStandard), "rate tier: basic, standard, premium, enterprise")
	cmd.Flags().StringVar(&f.instanceURL, "instance-url", "", "tenant's ITSM instance URL (required)")
	cmd.Flags().StringSliceVar(&f.scopes, "scope", nil, "allowed scope, repeatable (e.g. ITSM.Requests.READ)")
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "OAuth client id")
	cmd.Flags().StringVar(&f.clientSecret, "client-secret", "", "OAuth client secret (plaintext)")
	cmd.Flags().StringVar(&f.refreshToken, "refresh-token", "", "OAuth refresh token (plaintext)")
	cmd.Flags().StringVar(&f.clientSecretFrom, "client-secret-from", "", "load client secret from the secrets provider, as \"NAME,target=TARGET\"")
	cmd.Flags().StringVar(&f.refreshTokenFrom, "refresh-token-from", "", "load refresh token from the secrets provider, as \"NAME,target=TARGET\"")

	for _, required := range []string{"name", "region", "instance-url"} {
		if err := cmd.MarkFlagRequired(required); err != nil {
			panic(err)
		}
	}
	return cmd
}

func runTenantsRegister(ctx context.Context, f *registerFlags) error {
	v := sdpconfig.New(viper.GetString("config"))
	cfg, err := sdpconfig.Load(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	clientSecret, err := resolveSecret(ctx, cfg.SecretsProvider, f.clientSecret, f.clientSecretFrom)
	if err != nil {
		return fmt.Errorf("failed to resolve client secret: %w", err)
	}
	refreshToken, err := resolveSecret(ctx, cfg.SecretsProvider, f.refreshToken, f.refreshTokenFrom)
	if err != nil {
		return fmt.Errorf("failed to resolve refresh token: %w", err)
	}
	if clientSecret == "" || refreshToken == "" {
		return fmt.Errorf("client secret and refresh token are both required, via flag or --*-from")
	}

	t, err := d.tenants.Register(ctx, tenant.RegisterRequest{
		Name:         f.name,
		Region:       f.region,
		Tier:         store.RateTier(f.tier),
		ClientID:     f.clientID,
		ClientSecret: clientSecret,
		RefreshToken: refreshToken,
		Scopes:       f.scopes,
		InstanceURL:  f.instanceURL,
	})
	if err != nil {
		return fmt.Errorf("failed to register tenant: %w", err)
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return fmt.Errorf("failed to generate API key: %w", err)
	}

	fmt.Printf("Registered tenant %q (id=%s)\n\n", t.Name, t.ID)
	fmt.Printf("API key: %s\n\n", apiKey)
	fmt.Println("This key is not stored anywhere. Add it to the gateway's api_keys")
	fmt.Println("configuration (or the SDPGW_API_KEYS environment variable) before")
	fmt.Println("the tenant's client presents it as X-API-Key.")
	return nil
}

// resolveSecret prefers an explicit plaintext flag; failing that, if a
// "NAME,target=TARGET" reference was given, it loads NAME from the
// configured secrets provider. Returns "" if neither was supplied.
func resolveSecret(ctx context.Context, providerType, plaintext, ref string) (string, error) {
	if plaintext != "" {
		return plaintext, nil
	}
	if ref == "" {
		return "", nil
	}

	param, err := secrets.ParseSecretParameter(ref)
	if err != nil {
		return "", err
	}

	provider, err := secrets.CreateSecretProvider(secrets.ProviderType(providerType))
	if err != nil {
		return "", fmt.Errorf("failed to build secrets provider: %w", err)
	}
	defer func() { _ = provider.Cleanup() }()

	return provider.GetSecret(ctx, param.Name)
}

// generateAPIKey returns a random 32-byte hex-encoded credential, the
// value tenants present as X-API-Key.
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func newTenantsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTenantsList(cmd.Context())
		},
	}
}

func runTenantsList(ctx context.Context) error {
	v := sdpconfig.New(viper.GetString("config"))
	cfg, err := sdpconfig.Load(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	tenants, err := d.store.ListAllTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}
	if len(tenants) == 0 {
		fmt.Println("No tenants registered.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Options(
		tablewriter.WithHeader([]string{"ID", "Name", "Region", "Tier", "Status"}),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(5, tw.AlignLeft)),
	)

	for _, t := range tenants {
		if err := table.Append([]string{t.ID, t.Name, t.Region, string(t.Tier), string(t.Status)}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	return table.Render()
}

func newTenantsSuspendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suspend <tenant-id>",
		Short: "Suspend a tenant, blocking further token refresh and tool calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantsSetStatus(cmd.Context(), args[0], store.TenantSuspended)
		},
	}
}

func newTenantsActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <tenant-id>",
		Short: "Reactivate a suspended tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantsSetStatus(cmd.Context(), args[0], store.TenantActive)
		},
	}
}

func runTenantsSetStatus(ctx context.Context, tenantID string, status store.TenantStatus) error {
	v := sdpconfig.New(viper.GetString("config"))
	cfg, err := sdpconfig.Load(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.tenants.UpdateStatus(ctx, tenantID, status); err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	fmt.Printf("Tenant %s is now %s.\n", tenantID, strings.ToLower(string(status)))
	return nil
}
