package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/YO3CODER/yolinkify-sub000/internal/auth"
	"github.com/YO3CODER/yolinkify-sub000/internal/client"
	"github.com/YO3CODER/yolinkify-sub000/internal/config"
	"github.com/YO3CODER/yolinkify-sub000/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const anonymousViewerKey = "anonymous"

func newSnapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <link-id>",
		Short: "Show the engagement of a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReconciler(cmd, func(ctx context.Context, reconciler *client.Reconciler) error {
				state, err := reconciler.Refresh(ctx, args[0])
				printState(cmd.OutOrStdout(), args[0], state)
				if errors.Is(err, client.ErrDegraded) {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					return nil
				}
				return err
			})
		},
	}
}

func newLikeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "like <link-id>",
		Short: "Toggle the viewer's like on a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReconciler(cmd, func(ctx context.Context, reconciler *client.Reconciler) error {
				if _, err := reconciler.Refresh(ctx, args[0]); err != nil && !errors.Is(err, client.ErrDegraded) && !client.IsRetryable(err) {
					return err
				}
				state, err := reconciler.ToggleLike(ctx, args[0])
				printState(cmd.OutOrStdout(), args[0], state)
				if errors.Is(err, client.ErrDegraded) {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					return nil
				}
				return err
			})
		},
	}
}

func newClickCommand() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "click <link-id>",
		Short: "Follow a link and count the click",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReconciler(cmd, func(ctx context.Context, reconciler *client.Reconciler) error {
				state, err := reconciler.Click(ctx, args[0], target)
				printState(cmd.OutOrStdout(), args[0], state)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Target URL to open")
	return cmd
}

func withReconciler(cmd *cobra.Command, run func(ctx context.Context, reconciler *client.Reconciler) error) error {
	clientConfig, err := config.LoadClient(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewCLILogger(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	primaryHTTP, err := client.NewHTTPGateway(client.HTTPGatewayConfig{
		BaseURL:      clientConfig.BaseURL,
		Route:        client.RoutePrimary,
		SessionToken: clientConfig.SessionToken,
		Timeout:      clientConfig.HTTPTimeout,
	})
	if err != nil {
		return err
	}
	primary, err := client.NewBreakerGateway(primaryHTTP, client.DefaultBreakerConfig("primary"), logger)
	if err != nil {
		return err
	}
	fallback, err := client.NewHTTPGateway(client.HTTPGatewayConfig{
		BaseURL:      clientConfig.BaseURL,
		Route:        client.RouteFallback,
		SessionToken: clientConfig.SessionToken,
		Timeout:      clientConfig.HTTPTimeout,
	})
	if err != nil {
		return err
	}

	var cache client.LikeCache
	if clientConfig.LikeCachePath != "" {
		fileCache, err := client.NewFileLikeCache(clientConfig.LikeCachePath)
		if err != nil {
			return err
		}
		cache = fileCache
	}

	out := cmd.OutOrStdout()
	reconciler, err := client.NewReconciler(client.ReconcilerConfig{
		Primary:  primary,
		Fallback: fallback,
		Cache:    cache,
		Navigator: client.NavigatorFunc(func(_ context.Context, targetURL string) error {
			if strings.TrimSpace(targetURL) == "" {
				return nil
			}
			_, err := fmt.Fprintf(out, "open %s\n", targetURL)
			return err
		}),
		ViewerID:      viewerKey(clientConfig.SessionToken, logger),
		DegradedLikes: cache != nil,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	return run(cmd.Context(), reconciler)
}

// viewerKey names the local cache bucket for the session. The token is not
// verified here; the server does that on every request.
func viewerKey(sessionToken string, logger *zap.Logger) string {
	if sessionToken == "" {
		return anonymousViewerKey
	}
	var claims auth.SessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(sessionToken, &claims); err != nil {
		logger.Debug("session token unreadable", zap.Error(err))
		return anonymousViewerKey
	}
	if claims.UserID != "" {
		return claims.UserID
	}
	if claims.Subject != "" {
		return claims.Subject
	}
	return anonymousViewerKey
}

func printState(w io.Writer, linkID string, state client.LinkState) {
	snapshot := state.Snapshot
	source := "server"
	if !snapshot.Authoritative {
		source = "local"
	}
	fmt.Fprintf(w, "%s liked=%t likes=%d clicks=%d state=%s source=%s\n",
		linkID, snapshot.Liked, snapshot.LikesCount, snapshot.Clicks, state.Phase, source)
	if snapshot.PendingClicks > 0 {
		fmt.Fprintf(w, "%d click(s) not yet confirmed by the server\n", snapshot.PendingClicks)
	}
}
