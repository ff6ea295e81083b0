// Walletctl is a reference shell over the client SDK: it wires the stores,
// HTTP client, session manager, cache, and wallet service the way a mobile
// shell would, and exposes the flows as subcommands.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"billpoint/client/internal/api"
	"billpoint/client/internal/cache"
	"billpoint/client/internal/config"
	"billpoint/client/internal/lifecycle"
	"billpoint/client/internal/lock"
	"billpoint/client/internal/logging"
	"billpoint/client/internal/session"
	"billpoint/client/internal/store"
	"billpoint/client/internal/telemetry/otel"
	"billpoint/client/internal/wallet"
	walletdomain "billpoint/client/internal/wallet/domain"
)

// app holds the wired client components.
type app struct {
	cfg     *config.Config
	manager *session.Manager
	wallet  *wallet.Service
	cache   *cache.Cache
	plain   store.Plain
	secure  store.Secure
	close   func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		return nil, err
	}

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "billpoint-client", cfg.OTLPInsecure)
	if err != nil {
		return nil, err
	}
	providers.SetGlobal()

	dataDir := cfg.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dataDir = home + "/.billpoint"
	}
	plain, err := store.NewFileStore(dataDir + "/state.json")
	if err != nil {
		return nil, err
	}
	secure, err := store.NewSecureFileStore(dataDir + "/secure.json")
	if err != nil {
		return nil, err
	}

	installID, err := store.InstallationID(ctx, plain)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("installation_id", installID))

	hub := lifecycle.NewHub()
	// A CLI process is always foregrounded with working connectivity.
	hub.SetConnectivity(lifecycle.Connectivity{Connected: true, Reachable: true})

	// The manager does not exist yet when the client is constructed; by the
	// time any request can run, Start below has bound it.
	var manager *session.Manager
	client := api.New(cfg, secure, func() {
		if manager != nil {
			manager.HandleUnauthorized()
		}
	}, logger)
	manager = session.NewManager(client, plain, secure, hub, cfg.IdleThresholdDuration(), logger)
	manager.Start(ctx)
	if manager.State() == session.StateLoggedIn {
		if err := manager.RefreshIfNeeded(ctx); err != nil {
			logger.Warn("eager token refresh", zap.Error(err))
		}
	}

	c := cache.New(client, cache.PolicyFromConfig(cfg), hub, manager.HandleUnauthorized, logger)
	svc := wallet.NewService(client, c, logger)

	return &app{
		cfg:     cfg,
		manager: manager,
		wallet:  svc,
		cache:   c,
		plain:   plain,
		secure:  secure,
		close: func() {
			c.Close()
			manager.Close()
			_ = providers.Shutdown(ctx)
			_ = logger.Sync()
		},
	}, nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "walletctl",
		Short:         "Billpoint wallet client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newMeCmd(),
		newBalanceCmd(),
		newTransactionsCmd(),
		newAirtimeCmd(),
		newRefreshCmd(),
		newUnlockCmd(),
		newSweepCmd(),
	)
	return rootCmd
}

// withApp wires the client, runs fn, and tears down.
func withApp(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a)
	}
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email-or-username>",
		Short: "Authenticate and persist the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				fmt.Fprint(os.Stderr, "password: ")
				reader := bufio.NewReader(os.Stdin)
				password, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				sess, err := a.manager.Login(ctx, args[0], strings.TrimSpace(password))
				if err != nil {
					return err
				}
				fmt.Printf("logged in as %s (%s)\n", sess.FullName, sess.Email)
				return nil
			})(cmd, args)
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the session and persisted credentials",
		RunE: withApp(func(ctx context.Context, a *app) error {
			if err := a.manager.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("logged out")
			return nil
		}),
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show readiness, auth state, and session",
		RunE: withApp(func(ctx context.Context, a *app) error {
			fmt.Printf("ready: %v\nstate: %s\n", a.manager.Ready(), a.manager.State())
			if sess := a.manager.Session(); sess != nil {
				fmt.Printf("user: %s <%s>\n", sess.FullName, sess.Email)
			}
			return nil
		}),
	}
}

func newMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the extended profile",
		RunE: withApp(func(ctx context.Context, a *app) error {
			me, err := a.wallet.Me(ctx)
			if err != nil {
				return err
			}
			return printJSON(me)
		}),
	}
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		RunE: withApp(func(ctx context.Context, a *app) error {
			bal, err := a.wallet.Balance(ctx)
			if err != nil {
				return err
			}
			return printJSON(bal)
		}),
	}
}

func newTransactionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transactions",
		Short: "List recent transactions",
		RunE: withApp(func(ctx context.Context, a *app) error {
			txs, err := a.wallet.Transactions(ctx)
			if err != nil {
				return err
			}
			return printJSON(txs)
		}),
	}
}

func newAirtimeCmd() *cobra.Command {
	var req walletdomain.AirtimeRequest
	cmd := &cobra.Command{
		Use:   "airtime",
		Short: "Buy airtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				receipt, err := a.wallet.PurchaseAirtime(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(receipt)
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&req.Network, "network", "", "network operator (mtn, glo, airtel, 9mobile)")
	cmd.Flags().StringVar(&req.PhoneNumber, "phone", "", "recipient phone number")
	cmd.Flags().Int64Var(&req.Amount, "amount", 0, "amount in minor units")
	cmd.Flags().StringVar(&req.Pin, "pin", "", "transaction PIN")
	_ = cmd.MarkFlagRequired("network")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("pin")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the stored token pair",
		RunE: withApp(func(ctx context.Context, a *app) error {
			if err := a.manager.Refresh(ctx); err != nil {
				return err
			}
			fmt.Println("tokens rotated")
			return nil
		}),
	}
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Re-authenticate through the lock gate if it is engaged",
		RunE: withApp(func(ctx context.Context, a *app) error {
			// No biometric hardware on a terminal; the flow falls back to the
			// password prompt on its own.
			flow := lock.NewFlow(a.manager, a.plain, nil, a.cfg.IdleThresholdDuration(), logging.Nop())
			if !flow.ShouldLock(ctx) {
				fmt.Println("not locked")
				return nil
			}
			flow.Enter(ctx)
			fmt.Fprint(os.Stderr, "password: ")
			reader := bufio.NewReader(os.Stdin)
			password, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			phase, err := flow.SubmitPassword(ctx, strings.TrimSpace(password))
			if err != nil {
				return err
			}
			fmt.Printf("lock state: %s\n", phase)
			return nil
		}),
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Clear persisted credentials once, as the background sweeper would",
		RunE: withApp(func(ctx context.Context, a *app) error {
			session.NewSweeper(a.plain, a.secure, a.cfg.SweepIntervalDuration(), logging.Nop()).RunOnce(ctx)
			fmt.Println("persisted credentials cleared")
			return nil
		}),
	}
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("walletctl: %v", err)
	}
}
