package main

import (
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/nao1215/capsule/internal/clientcert"
	"github.com/nao1215/capsule/internal/database"
	"github.com/nao1215/capsule/internal/prompt"
	"github.com/spf13/cobra"
)

// NewCertCmd creates the cert command and its subcommands.
func NewCertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Manage Gemini client certificates",
		Long: heredoc.Doc(`
			Persistent client certificates identify you to Gemini capsules across
			sessions. They are stored in the config directory and activated for a
			single navigation with "capsule go --cert NAME".

			Transient certificates are created on demand when a capsule asks for
			one, and deleted when the session ends.`),
		Example: heredoc.Doc(`
			capsule cert generate astrobotany
			capsule go --cert astrobotany gemini://astrobotany.mozz.us/app
			capsule cert forget astrobotany.mozz.us`),
	}

	cmd.AddCommand(newCertGenerateCmd())
	cmd.AddCommand(newCertListCmd())
	cmd.AddCommand(newCertForgetCmd())
	return cmd
}

// certEnv opens the certificate manager without any network setup.
type certEnv struct {
	db      *database.DB
	manager *clientcert.Manager
}

func openCerts(cmd *cobra.Command) (*certEnv, func(), error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	logger, logCloser := setupLogger(cmd, cfg)
	db, err := database.Open(cfg.TOFUDatabasePath(), database.DefaultOptions())
	if err != nil {
		_ = logCloser.Close() //nolint:errcheck // reporting the open error
		return nil, nil, err
	}
	env := &certEnv{
		db:      db,
		manager: clientcert.NewManager(cfg.ConfigDir, db, prompt.NewFixed(false), clientcert.WithLogger(logger)),
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
		_ = logCloser.Close() //nolint:errcheck // nothing left to report to
	}
	return env, cleanup, nil
}

func newCertGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <name>",
		Short: "Create a persistent client certificate valid for one year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := openCerts(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := env.manager.GeneratePersistent(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created certificate %s\n", id.Name)
			fmt.Fprintf(out, "  certificate: %s\n", id.CertPath)
			fmt.Fprintf(out, "  key:         %s\n", id.KeyPath)
			return nil
		},
	}
}

func newCertListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persistent client certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, cleanup, err := openCerts(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			names, err := env.manager.Persistent()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No persistent certificates.")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newCertForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <host>",
		Short: "Stop offering the remembered certificate to a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := openCerts(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := env.db.ForgetClientCert(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot the certificate used with %s\n", args[0])
			return nil
		},
	}
}
