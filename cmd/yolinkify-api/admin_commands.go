package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/YO3CODER/yolinkify-sub000/internal/auth"
	"github.com/YO3CODER/yolinkify-sub000/internal/config"
	"github.com/YO3CODER/yolinkify-sub000/internal/database"
	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"github.com/YO3CODER/yolinkify-sub000/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newAddLinkCommand() *cobra.Command {
	var (
		ownerID string
		title   string
	)
	cmd := &cobra.Command{
		Use:   "add-link <target-url>",
		Short: "Publish a link so it can be liked and clicked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, func(ctx context.Context, catalog *links.Catalog) error {
				link, err := catalog.Create(ctx, links.NewLink{
					OwnerID:   ownerID,
					Title:     title,
					TargetURL: args[0],
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), link.LinkID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "Identifier of the page owner publishing the link")
	cmd.Flags().StringVar(&title, "title", "", "Display title of the link")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newDeleteLinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-link <link-id>",
		Short: "Retire a link together with its likes and clicks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			linkID, err := links.NewLinkID(args[0])
			if err != nil {
				return err
			}
			return withCatalog(cmd, func(ctx context.Context, catalog *links.Catalog) error {
				if err := catalog.Delete(ctx, linkID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", linkID)
				return nil
			})
		},
	}
}

// withCatalog opens the link catalog against the configured counter store so
// links created or deleted here are seen by the store as well.
func withCatalog(cmd *cobra.Command, run func(ctx context.Context, catalog *links.Catalog) error) error {
	databasePath := strings.TrimSpace(viper.GetString("database.path"))
	if databasePath == "" {
		return fmt.Errorf("database.path is required")
	}
	storeConfig, err := config.LoadStore(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewCLILogger(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(databasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	ctx := cmd.Context()
	backend, err := openCounterBackend(ctx, storeConfig, db, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	catalog, err := links.NewCatalog(links.CatalogConfig{Database: db, Logger: logger, Lifecycle: backend.lifecycle})
	if err != nil {
		return err
	}
	return run(ctx, catalog)
}

func newMintSessionCommand() *cobra.Command {
	var (
		email       string
		displayName string
	)
	cmd := &cobra.Command{
		Use:   "mint-session <viewer-id>",
		Short: "Sign a development session token for a viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := strings.TrimSpace(viper.GetString("session.signing_secret"))
			if secret == "" {
				return fmt.Errorf("session.signing_secret is required")
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(secret),
				Issuer:        viper.GetString("session.issuer"),
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(auth.SessionIdentity{
				UserID:      args[0],
				Email:       email,
				DisplayName: displayName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Viewer email embedded in the token")
	cmd.Flags().StringVar(&displayName, "name", "", "Viewer display name embedded in the token")
	return cmd
}
