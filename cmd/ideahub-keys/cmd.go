package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ideahub/internal/auth"
	"github.com/kiranshivaraju/ideahub/internal/store"
	"github.com/kiranshivaraju/ideahub/pkg/models"
	"github.com/spf13/cobra"
)

// Rate limit bounds accepted by the api_keys table.
const (
	minRateLimit = 1
	maxRateLimit = 10000
)

// storeOpener returns a store, the API key format prefix and a close func.
type storeOpener func(ctx context.Context) (store.Store, string, func(), error)

func newRootCmd(open storeOpener) *cobra.Command {
	root := &cobra.Command{
		Use:           "ideahub-keys",
		Short:         "Manage IdeaHub API keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCreateCmd(open), newListCmd(open), newRevokeCmd(open))
	return root
}

func newCreateCmd(open storeOpener) *cobra.Command {
	var (
		owner       string
		name        string
		permissions string
		rateLimit   int
		expiresIn   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key and print it once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("--owner must be a UUID: %w", err)
			}
			perms, err := parsePermissions(permissions)
			if err != nil {
				return err
			}
			if rateLimit < minRateLimit || rateLimit > maxRateLimit {
				return fmt.Errorf("--rate-limit must be between %d and %d", minRateLimit, maxRateLimit)
			}
			if expiresIn < 0 {
				return fmt.Errorf("--expires-in must not be negative")
			}

			s, prefix, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			raw, key, err := issueKey(cmd.Context(), s, prefix, ownerID, name, perms, rateLimit, expiresIn, time.Now().UTC())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:          %s\n", key.ID)
			fmt.Fprintf(out, "owner:       %s\n", key.OwnerID)
			fmt.Fprintf(out, "permissions: %s\n", strings.Join(key.Permissions, ","))
			fmt.Fprintf(out, "rate limit:  %d/hour\n", key.RateLimitPerHour)
			if key.ExpiresAt != nil {
				fmt.Fprintf(out, "expires:     %s\n", key.ExpiresAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "\n%s\n\nStore this key now; it cannot be shown again.\n", raw)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner UUID the key acts for")
	cmd.Flags().StringVar(&name, "name", "default", "label for the key")
	cmd.Flags().StringVar(&permissions, "permissions", "read", "comma-separated permissions: read, write, admin")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 1000, "requests allowed per hour")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "lifetime of the key, 0 for no expiry")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newListCmd(open storeOpener) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's API keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("--owner must be a UUID: %w", err)
			}

			s, _, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			keys, err := s.ListAPIKeys(cmd.Context(), ownerID)
			if err != nil {
				return fmt.Errorf("list api keys: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tPERMISSIONS\tLIMIT\tACTIVE\tUSES\tEXPIRES")
			now := time.Now()
			for _, k := range keys {
				expires := "never"
				if k.ExpiresAt != nil {
					expires = k.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%t\t%d\t%s\n",
					k.ID, k.Name, k.KeyPrefix, strings.Join(k.Permissions, ","),
					k.RateLimitPerHour, k.IsValid(now), k.UsageCount, expires)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner UUID")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newRevokeCmd(open storeOpener) *cobra.Command {
	var id, owner string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Deactivate an API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			keyID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("--id must be a UUID: %w", err)
			}
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("--owner must be a UUID: %w", err)
			}

			s, _, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := s.RevokeAPIKey(cmd.Context(), keyID, ownerID); err != nil {
				return fmt.Errorf("revoke api key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", keyID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "key UUID")
	cmd.Flags().StringVar(&owner, "owner", "", "owner UUID")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// issueKey generates a key, stores its hash and returns the raw value.
func issueKey(ctx context.Context, s store.Store, prefix string, ownerID uuid.UUID, name string,
	perms []string, rateLimit int, expiresIn time.Duration, now time.Time) (string, *models.APIKey, error) {
	raw, hash, lookup, err := auth.GenerateAPIKey(prefix)
	if err != nil {
		return "", nil, err
	}

	key := &models.APIKey{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		Name:             name,
		KeyHash:          hash,
		KeyPrefix:        lookup,
		Permissions:      perms,
		RateLimitPerHour: rateLimit,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if expiresIn > 0 {
		exp := now.Add(expiresIn)
		key.ExpiresAt = &exp
	}

	if err := s.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("create api key: %w", err)
	}
	return raw, key, nil
}

// parsePermissions splits a comma-separated list, rejecting unknown names.
func parsePermissions(s string) ([]string, error) {
	seen := map[string]bool{}
	var perms []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		switch p {
		case models.PermissionRead, models.PermissionWrite, models.PermissionAdmin:
		default:
			return nil, fmt.Errorf("unknown permission %q (want read, write or admin)", p)
		}
		seen[p] = true
		perms = append(perms, p)
	}
	if len(perms) == 0 {
		return nil, fmt.Errorf("--permissions must name at least one of read, write, admin")
	}
	return perms, nil
}
