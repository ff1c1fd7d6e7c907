package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/ldapws/internal/fakeserver"
	"github.com/luma/ldapws/storage"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string

	// The port to listen for LDAP clients on
	port int

	// JSON directory dump to load at startup, as served by GET /entries
	seedPath string

	credentials []string
	referrals   []string
	suffix      string
)

func init() {
	flags := FakeServerCmd.Flags()

	flags.IntVarP(&port, "port", "p", 3389, "The port to listen for LDAP connections on")
	flags.StringVar(&httpPort, "http-port", "3380", "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", "127.0.0.1", "The host to listen on")
	flags.StringVar(&seedPath, "seed", "", "JSON directory dump to load at startup")
	flags.StringArrayVar(&credentials, "credential", nil, "Bind credential as dn=password, may be repeated")
	flags.StringArrayVar(&referrals, "referral", nil, "Referral URI returned by searches, may be repeated")
	flags.StringVar(&suffix, "suffix", "dc=example,dc=com", "Naming context created at startup, empty for none")
}

var FakeServerCmd = &cobra.Command{
	Use:   "fake-server",
	Short: "Run an in-memory LDAP directory for local testing",
	Long: `Run an in-memory LDAP directory for local testing

Usage
	ldapws fake-server --credential cn=admin,dc=example,dc=com=secret

The directory can be inspected and replaced over HTTP at /entries.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		store, err := seedStore(ctx)
		if err != nil {
			return err
		}

		creds, err := parseCredentials(credentials)
		if err != nil {
			return err
		}

		server := fakeserver.New(fakeserver.Options{
			Host:        host,
			Port:        port,
			Reuseport:   true,
			Credentials: creds,
			Referrals:   referrals,
			Store:       store,
			Log:         log.Named("fakeserver"),
		})

		if err := server.Start(ctx); err != nil {
			return err
		}

		s := &http.Server{
			Addr:    net.JoinHostPort(host, httpPort),
			Handler: fakeserver.NewAdminRouter(store, conf.DebugHTTP, log.Named("http")),
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		log.Info("Listening",
			zap.String("addr", server.Addr()),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := server.Close(); err != nil {
			log.Error("LDAP server forced to shutdown", zap.Error(err))
		}

		if err := store.Close(); err != nil {
			log.Error("Failed to close store", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func seedStore(ctx context.Context) (storage.Store, error) {
	store := storage.NewInmemoryStore()

	if seedPath != "" {
		data, err := os.ReadFile(seedPath)
		if err != nil {
			return nil, err
		}

		if err := store.Restore(data); err != nil {
			return nil, err
		}
	}

	if suffix != "" {
		rdn, _, _ := strings.Cut(suffix, ",")
		name, value, _ := strings.Cut(rdn, "=")

		err := store.Add(ctx, &storage.Entry{
			DN: suffix,
			Attributes: map[string][]string{
				"objectClass": {"top", "domain"},
				name:          {value},
			},
		})
		if err != nil && !errors.Is(err, storage.ErrEntryExists) {
			return nil, err
		}
	}

	return store, nil
}

// parseCredentials splits dn=password pairs at the last '=', since the DN
// itself contains them.
func parseCredentials(pairs []string) (map[string]string, error) {
	creds := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		i := strings.LastIndex(pair, "=")
		if i <= 0 {
			return nil, errors.New("Credential " + pair + " is not dn=password")
		}

		creds[pair[:i]] = pair[i+1:]
	}

	return creds, nil
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
