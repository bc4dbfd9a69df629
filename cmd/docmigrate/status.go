package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/loykin/docmigrate/pkg/router"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 5 * time.Second

func newStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show executed and pending changesets and the lock holder",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(context.WithoutCancel(ctx)) }()

			if addr := v.GetString("status.listen"); addr != "" {
				return serveStatus(ctx, addr, router.New(router.Options{}, m))
			}
			info, err := m.Status(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), info.FormatHuman())
			return err
		},
	}
	cmd.Flags().String("listen", "", "serve status over HTTP on this address instead of printing it")
	_ = v.BindPFlag("status.listen", cmd.Flags().Lookup("listen"))
	return cmd
}

// serveStatus runs the status router until ctx is cancelled.
func serveStatus(ctx context.Context, addr string, r *router.Router) error {
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		r.Close()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}
