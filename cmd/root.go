package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ldapws/client"
	"github.com/luma/ldapws/cmd/gen"
	"github.com/luma/ldapws/internal/env"
	"github.com/luma/ldapws/session"
)

var (
	// Path to a YAML connection profile
	profilePath string

	address  string
	bindDN   string
	password string
	logLevel string
	trace    bool

	noVerifyMessageID bool
)

var RootCmd = &cobra.Command{
	Use:   "ldapws",
	Short: "LDAP client over TCP or WebSocket tunnels",
	Long: `ldapws talks LDAPv3 to a directory server, either directly over TCP or
through a WebSocket endpoint that forwards the LDAP byte stream.

Connection settings are read from LDAPWS_* environment variables (and
.env.local), then from the --profile file, then from flags.`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVar(&profilePath, "profile", "", "YAML connection profile")
	flags.StringVarP(&address, "address", "H", "", "Server address: ldap://, ws://, wss:// URL or host:port")
	flags.StringVarP(&bindDN, "bind-dn", "D", "", "DN to bind as")
	flags.StringVarP(&password, "password", "w", "", "Bind password")
	flags.StringVar(&logLevel, "log-level", "", "One of panic, error, warn, info, debug, trace")
	flags.BoolVar(&trace, "trace", false, "Dump every LDAP packet to stdout")
	flags.BoolVar(&noVerifyMessageID, "no-verify-message-id", false, "Accept responses whose message ID does not match the request")

	RootCmd.AddCommand(BindCmd)
	RootCmd.AddCommand(SearchCmd)
	RootCmd.AddCommand(AddCmd)
	RootCmd.AddCommand(DeleteCmd)
	RootCmd.AddCommand(RenameCmd)
	RootCmd.AddCommand(FakeServerCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := RootCmd.ExecuteContext(ctx)
	signalStop()

	if err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves env, profile and flags, in that order.
func loadConfig(cmd *cobra.Command) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(cmd.Context(), profilePath)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		conf.Address = address
	}
	if flags.Changed("bind-dn") {
		conf.BindDN = bindDN
	}
	if flags.Changed("password") {
		conf.Password = password
	}
	if flags.Changed("log-level") {
		conf.LogLevel = logLevel
	}
	if flags.Changed("trace") {
		conf.Trace = trace
	}
	if noVerifyMessageID {
		conf.VerifyMessageID = false
	}

	if strings.EqualFold(conf.LogLevel, "trace") {
		conf.Trace = true
	}

	log, err := env.MakeLogger(conf.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	return conf, log, nil
}

// connect opens a bound session as configured.
func connect(ctx context.Context, cmd *cobra.Command) (*session.Session, *env.Config, *zap.Logger, error) {
	conf, log, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	if conf.Address == "" {
		return nil, nil, nil, errors.New("No server address, use --address or LDAPWS_ADDRESS")
	}

	s, err := client.Connect(ctx, client.Config{
		Address:         conf.Address,
		BindDN:          conf.BindDN,
		Password:        conf.Password,
		VerifyMessageID: conf.VerifyMessageID,
		DialTimeout:     conf.DialTimeout,
		Subprotocols:    conf.Subprotocols,
		Trace:           conf.Trace,
		Domain:          conf.Domain,
		KDCAddress:      conf.KDCAddress,
		KDCProxyAddress: conf.KDCProxyAddress,
		Log:             log,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return s, conf, log, nil
}

// finish unbinds s and returns err combined with any unbind failure.
func finish(ctx context.Context, s *session.Session, log *zap.Logger, err error) error {
	unbindErr := s.Unbind(ctx)
	if unbindErr != nil {
		log.Warn("Unbind failed", zap.Error(unbindErr))
	}

	return multierr.Append(err, unbindErr)
}
