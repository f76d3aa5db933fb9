package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zecrypt/zecrypt-go/internal/common"
	"github.com/zecrypt/zecrypt-go/internal/config"
	"github.com/zecrypt/zecrypt-go/internal/fieldcipher"
	"github.com/zecrypt/zecrypt-go/internal/gateway"
	"github.com/zecrypt/zecrypt-go/internal/gateway/local"
	"github.com/zecrypt/zecrypt-go/internal/gateway/remote"
	"github.com/zecrypt/zecrypt-go/internal/handoff"
	"github.com/zecrypt/zecrypt-go/internal/keyvault"
	"github.com/zecrypt/zecrypt-go/internal/localstore"
	"github.com/zecrypt/zecrypt-go/internal/logging"
	"github.com/zecrypt/zecrypt-go/internal/records"
	"github.com/zecrypt/zecrypt-go/internal/session"
)

const saltSettingsKey = "master_salt"

func main() {
	rootCmd := &cobra.Command{
		Use:           "zecrypt",
		Short:         "zecrypt - encrypted secrets across web, desktop and browser surfaces",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newAgentCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newPushCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogoutCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "zecrypt: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired components behind every command.
type app struct {
	cfg      *config.Config
	store    *localstore.Store
	sessions *session.Store
	vault    *keyvault.Vault
	gw       gateway.Gateway
	log      logging.Logger
}

// openApp wires the embedded store, session, vault and the mode-routed
// gateway. localMode pins the router to the embedded store; otherwise calls
// go to the remote service.
func openApp(ctx context.Context, localMode bool) (*app, func(), error) {
	cfg := config.LoadConfig()
	log := logging.NewStderrTextLogger()

	store, err := localstore.Open(ctx, cfg.DatabasePath, log)
	if err != nil {
		return nil, nil, err
	}
	settings := store.Settings()

	sessions := session.NewStore(settings)
	master, err := masterSecret(ctx, settings)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	vault := keyvault.New(settings, master, log)

	mode := gateway.ModeRemote
	if localMode {
		mode = gateway.ModeLocal
	}
	router := gateway.NewRouter(
		remote.New(cfg.APIBaseURL, sessions, vault, log),
		local.New(store, vault, log),
		func() gateway.Mode { return mode },
	)

	a := &app{cfg: cfg, store: store, sessions: sessions, vault: vault, gw: router, log: log}
	return a, func() { store.Close() }, nil
}

// masterSecret derives the key-wrapping secret from the user passphrase and
// the per-install salt, minting the salt on first use. The passphrase comes
// from ZECRYPT_PASSPHRASE when set (the agent has no terminal), otherwise
// from a prompt.
func masterSecret(ctx context.Context, settings *localstore.Settings) (string, error) {
	saltHex, err := settings.Get(ctx, saltSettingsKey)
	if errors.Is(err, common.ErrNotFound) {
		salt := common.GenerateRandByteArray(16)
		saltHex = hex.EncodeToString(salt)
		if err := settings.Set(ctx, saltSettingsKey, saltHex); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("stored salt is corrupt: %w", err)
	}

	passphrase := []byte(os.Getenv("ZECRYPT_PASSPHRASE"))
	if len(passphrase) == 0 {
		fmt.Fprint(os.Stderr, "Passphrase: ")
		passphrase, err = term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("passphrase read: %w", err)
		}
	}
	defer common.WipeByteArray(passphrase)

	return keyvault.DeriveMasterSecret(passphrase, salt), nil
}

func newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Serve the browser extension over native messaging on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, closeApp, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer closeApp()

			handler := handoff.NewHandler(a.sessions, a.vault, a.gw, nil, nil, a.log)
			handler.Poller().Configure(a.cfg.PollInterval, a.cfg.PollAttempts)
			host := handoff.NewHost(handler, os.Stdin, os.Stdout, a.log)
			return host.Run(ctx)
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new project encryption key",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), fieldcipher.GenerateKey())
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var localMode bool

	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List records of a type in the active project",
		Long: `List records of the given type (accounts, cards, emails, notes, ...)
in the active project. Payloads that cannot be decrypted are shown with
their sentinel text instead of being hidden.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := records.KindForResource(args[0])
			if !ok {
				return fmt.Errorf("unknown record type %q", args[0])
			}

			ctx := cmd.Context()
			a, closeApp, err := openApp(ctx, localMode)
			if err != nil {
				return err
			}
			defer closeApp()

			sess, err := a.sessions.Current(ctx)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return fmt.Errorf("not logged in")
				}
				return err
			}

			res := a.gw.List(ctx, kind, sess.ProjectID)
			if !res.Success {
				return res.Err
			}

			for _, rec := range res.Records {
				line := fmt.Sprintf("%s\t%s", rec.DocID, rec.Title)
				if rec.Degraded != "" {
					line += "\t[" + rec.Degraded + "]"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&localMode, "local", false, "read from the embedded store instead of the remote service")
	return cmd
}

// buildBridgePayload assembles the handoff payload from the active session,
// carrying the project key when the vault can supply one. A key miss is a
// degraded push, not a failure.
func buildBridgePayload(ctx context.Context, sessions *session.Store, vault *keyvault.Vault) (*handoff.BridgePayload, error) {
	sess, err := sessions.Current(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("not logged in")
		}
		return nil, err
	}
	if session.TokenExpired(sess.Token) {
		return nil, common.ErrAuthExpired
	}

	payload := &handoff.BridgePayload{
		Token:       sess.Token,
		WorkspaceID: sess.WorkspaceID,
		ProjectID:   sess.ProjectID,
		Timestamp:   time.Now().UnixMilli(),
	}
	if sess.ProjectID != "" {
		if key, err := vault.GetProjectKey(ctx, sess.ProjectID); err == nil {
			payload.ProjectAESKey = key
		}
	}
	return payload, nil
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push the active session to a peer surface over stdio",
		Long: `Hand the active session (token, workspace/project ids and, when the
vault holds one, the project key) to a peer surface listening on stdout,
framed the same way the agent speaks. The peer adopts it as a LOGIN.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, closeApp, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer closeApp()

			payload, err := buildBridgePayload(ctx, a.sessions, a.vault)
			if err != nil {
				return err
			}

			pusher := handoff.NewPusher(handoff.NewFrameMessenger(cmd.OutOrStdout()), a.log)
			pusher.PushLogin(ctx, payload)
			if pusher.State() != handoff.PushAcknowledged {
				return fmt.Errorf("session push not delivered")
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, closeApp, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer closeApp()

			sess, err := a.sessions.Current(ctx)
			if errors.Is(err, common.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			if err != nil {
				return err
			}

			state := "valid"
			if session.TokenExpired(sess.Token) {
				state = "expired"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workspace:\t%s\nproject:\t%s\ntoken:\t%s\n", sess.WorkspaceID, sess.ProjectID, state)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, closeApp, err := openApp(ctx, true)
			if err != nil {
				return err
			}
			defer closeApp()

			if err := a.sessions.Clear(ctx); err != nil {
				return err
			}
			a.vault.Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}
