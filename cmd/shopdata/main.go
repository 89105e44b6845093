package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"shopData/internal/config"
	"shopData/internal/db"
	grpcserver "shopData/internal/grpc"
	"shopData/internal/logging"
	"shopData/models"
	"shopData/query"
	"shopData/repository"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg *config.Config
	db  *sql.DB
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "shopdata",
		Short:        "Shop data access: accounts, roles, permissions and catalog",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithDefaults()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logging.Apply(cfg.Log.Level, cfg.Log.File)
			log.Info().Msgf("Configuration loaded: %v", cfg)
			a.cfg = cfg
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.db != nil {
				if err := a.db.Close(); err != nil {
					log.Error().Err(err).Msg("close db")
				}
			}
		},
	}
	root.AddCommand(a.serveCmd(), a.migrateCmd(), a.userCmd())
	return root
}

func (a *app) open(migrate bool) error {
	d, err := db.OpenDriver(a.cfg.Database.Driver, a.cfg.Database.DSN, db.Options{Migrate: migrate})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	a.db = d
	return nil
}

func (a *app) accounts() (*repository.AccountProvider, error) {
	q := query.New(a.db,
		query.WithPlaceholder(db.Placeholder(a.cfg.Database.Driver)),
		query.WithTimeout(a.cfg.Database.QueryTimeout),
	)
	passwords := repository.BcryptPasswords{Cost: a.cfg.Auth.BcryptCost}
	return repository.NewAccountProvider(q, repository.AccountConfig{
		Fields:        a.cfg.Account.ExtraFields,
		InactiveField: a.cfg.Account.InactiveField,
		LoginField:    a.cfg.Account.LoginField,
		Checker:       passwords,
		Hasher:        passwords,
	})
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the account gRPC API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Issuing tokens with the development secret is never allowed.
			if _, err := config.Load(); err != nil {
				return err
			}
			if err := a.open(a.cfg.Database.Migrate); err != nil {
				return err
			}
			accounts, err := a.accounts()
			if err != nil {
				return err
			}
			shutdown, err := grpcserver.StartGRPC(a.cfg, accounts)
			if err != nil {
				return fmt.Errorf("start grpc: %w", err)
			}
			log.Info().Str("address", a.cfg.GRPC.Address).Msg("gRPC server listening")

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
			<-sigc

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("shutdown error")
			}
			return nil
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the embedded sqlite migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(*cobra.Command, []string) error {
			if !db.IsSQLite(a.cfg.Database.Driver) {
				return errors.New("embedded migrations only target sqlite")
			}
			if err := a.open(false); err != nil {
				return err
			}
			return db.Migrate(a.db)
		},
	}, &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(*cobra.Command, []string) error {
			if !db.IsSQLite(a.cfg.Database.Driver) {
				return errors.New("embedded migrations only target sqlite")
			}
			if err := a.open(false); err != nil {
				return err
			}
			return db.RollbackLast(a.db)
		},
	})
	return cmd
}

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	var nu models.NewUser
	var roles []string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user with a bcrypt-hashed password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nu.Username == "" || nu.Email == "" || nu.Password == "" {
				return errors.New("--username, --email and --password are required")
			}
			if err := a.open(a.cfg.Database.Migrate); err != nil {
				return err
			}
			accounts, err := a.accounts()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			uid, err := accounts.Create(ctx, nu)
			if err != nil {
				return err
			}
			for _, name := range roles {
				rid, err := accounts.EnsureRole(ctx, name)
				if err != nil {
					return err
				}
				if err := accounts.AssignRole(ctx, uid, rid); err != nil {
					return err
				}
			}
			log.Info().Int64("uid", uid).Str("username", nu.Username).Strs("roles", roles).Msg("User created")
			return nil
		},
	}
	add.Flags().StringVar(&nu.Username, "username", "", "login name")
	add.Flags().StringVar(&nu.Email, "email", "", "email address")
	add.Flags().StringVar(&nu.Password, "password", "", "initial password")
	add.Flags().StringSliceVar(&roles, "role", nil, "role to assign, created when missing (repeatable)")
	cmd.AddCommand(add)
	return cmd
}
