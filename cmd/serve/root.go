package serve

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ValentinKolb/litepool/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 5 * time.Second

var (
	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the key-value store and the pool metrics over http",
		Long: util.WrapString(`Opens the pool and the key-value store and serves them over http.
The configuration can be set via command line flags or environment variables.
The format of the environment variables is LITEPOOL_<flag> (e.g. LITEPOOL_READERS=16).
Endpoints: GET/HEAD/PUT/DELETE /kv/{key}, POST /kv/{key}/expire, GET /info, POST /gc, GET /stats, GET /metrics`),
		RunE: run,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupPoolFlags(ServeCmd)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", util.WrapString("The address on which the API will listen"))
}

// run opens the session and serves until SIGINT or SIGTERM
func run(cmd *cobra.Command, _ []string) error {
	session, err := util.OpenSession(cmd, true)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	endpoint := viper.GetString("endpoint")
	srv := &http.Server{
		Addr:    endpoint,
		Handler: NewHandler(session.Config, session.Pool, session.Store, session.Config.LogLevel == "debug"),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting HTTP server on %s (db=%s)", endpoint, session.Config.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infof("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
