package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"ikedadada/go-tor4iot/internal/config"
	vo "ikedadada/go-tor4iot/internal/domain/value_object"
	"ikedadada/go-tor4iot/internal/handler"
	infraSvc "ikedadada/go-tor4iot/internal/infrastructure/service"
	"ikedadada/go-tor4iot/internal/instrument"
	"ikedadada/go-tor4iot/internal/log"
	"ikedadada/go-tor4iot/internal/usecase"
)

const defaultConfigFile = "tor4iot.toml"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "device",
		Short:        "Tor4IoT constrained device",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCommand(), newTicketCommand(), newKeygenCommand())
	return root
}

// ----------------------------------------------------------------------------
// run

func newRunCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the entry relay and serve delegation tickets",
		Example: `  device run -f /etc/tor4iot/device.toml
  TOR4IOT_CONFIG=/etc/tor4iot/device.toml device run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd.Context(), configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "f", config.PathFromEnv(defaultConfigFile),
		"path to the device configuration file (TOML)")
	return cmd
}

func runDevice(ctx context.Context, configFile string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %v", configFile, err)
	}
	logs, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return err
	}
	defer logs.Close()
	mainLog := logs.GetLogger("main")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Address != "" {
		if err := instrument.Register(prometheus.DefaultRegisterer); err != nil {
			return err
		}
		go func() {
			if err := instrument.Serve(ctx, cfg.Metrics.Address, prometheus.DefaultGatherer); err != nil {
				mainLog.Errorf("metrics: %v", err)
			}
		}()
		mainLog.Noticef("metrics on %s", cfg.Metrics.Address)
	}

	tlsConf := infraSvc.TLSConfig(cfg.Entry.ServerName, cfg.Entry.ALPN, cfg.Entry.InsecureSkipVerify)
	tx := infraSvc.NewQUICTransmitter(cfg.Entry.Address, tlsConf, logs.GetLogger("transport"))
	dev := handler.NewDevice(tx, handler.DeviceOptions{
		Identity:       cfg.Device.IdentityBytes(),
		Keys:           usecase.DeviceKeys(cfg.Keys.Material()),
		CircuitIDBase:  cfg.Device.CircuitIDBase,
		ReconnectDelay: cfg.Device.ReconnectDelay.Duration,
		Rand:           rand.Reader,
	}, logs)

	mainLog.Noticef("device starting, entry %s", cfg.Entry.Address)
	return dev.Run(ctx)
}

// ----------------------------------------------------------------------------
// ticket

type ticketFlags struct {
	configFile string
	typ        string
	secret     string
	salt       string
	cookie     uint32
	fast       bool
}

func newTicketCommand() *cobra.Command {
	var f ticketFlags
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Issue a delegation ticket for a device and print it as hex",
		Example: `  device ticket --type client --secret s3cret --cookie 42
  device ticket -f device.toml --type service --secret s3cret
  device ticket --fast --secret s3cret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := usecase.DefaultDeviceKeys()
			if f.configFile != "" {
				cfg, err := config.LoadFile(f.configFile)
				if err != nil {
					return fmt.Errorf("failed to load config file '%v': %v", f.configFile, err)
				}
				keys = usecase.DeviceKeys(cfg.Keys.Material())
			}
			return issueTicket(cmd.OutOrStdout(), keys, f, rand.Reader)
		},
	}
	cmd.Flags().StringVarP(&f.configFile, "config", "f", "", "device configuration holding the keys (defaults are used when empty)")
	cmd.Flags().StringVar(&f.typ, "type", "client", "ticket type: client or service")
	cmd.Flags().StringVar(&f.secret, "secret", "", "secret the hop material is derived from")
	cmd.Flags().StringVar(&f.salt, "salt", "", "optional derivation salt")
	cmd.Flags().Uint32Var(&f.cookie, "cookie", 0, "rendezvous cookie")
	cmd.Flags().BoolVar(&f.fast, "fast", false, "issue a fast ticket")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}

func parseTicketType(s string) (vo.TicketType, error) {
	switch strings.ToLower(s) {
	case "client":
		return vo.TicketTypeClient, nil
	case "service", "hidden-service":
		return vo.TicketTypeHiddenService, nil
	default:
		return 0, fmt.Errorf("invalid argument %q for --type", s)
	}
}

func issueTicket(w io.Writer, keys usecase.DeviceKeys, f ticketFlags, rnd io.Reader) error {
	typ, err := parseTicketType(f.typ)
	if err != nil {
		return err
	}
	if f.secret == "" {
		return errors.New("secret must not be empty")
	}
	tk, err := usecase.DeriveTicketMaterial([]byte(f.secret), []byte(f.salt), typ, f.cookie)
	if err != nil {
		return err
	}
	issuer := usecase.NewTicketIssuer(keys, rnd)

	var raw []byte
	if f.fast {
		raw, err = issuer.IssueFast(&vo.FastTicket{Cookie: tk.Cookie, KeyExpansion: tk.KeyExpansion})
	} else {
		raw, err = issuer.Issue(tk)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hex.EncodeToString(raw))
	return err
}

// ----------------------------------------------------------------------------
// keygen

func newKeygenCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a device identity and keys as a TOML fragment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return writeKeys(cmd.OutOrStdout(), rand.Reader)
			}
			fh, err := os.OpenFile(out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
			if err != nil {
				return err
			}
			defer fh.Close()
			if err := writeKeys(fh, rand.Reader); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "generated", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func writeKeys(w io.Writer, rnd io.Reader) error {
	randHex := func(n int) (string, error) {
		b := make([]byte, n)
		if _, err := io.ReadFull(rnd, b); err != nil {
			return "", err
		}
		return hex.EncodeToString(b), nil
	}
	id, err := randHex(usecase.IdentitySize)
	if err != nil {
		return err
	}
	var keys [3]string
	for i := range keys {
		if keys[i], err = randHex(16); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "[Device]\n  Identity = %q\n\n[Keys]\n  Ticket = %q\n  MAC = %q\n  FastAck = %q\n",
		id, keys[0], keys[1], keys[2])
	return err
}
