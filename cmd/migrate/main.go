package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-slot-scheduling/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the scheduling database schema",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("migrate up: %w", err)
					}
					fmt.Println("migrations complete")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations, one step unless told otherwise",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return fmt.Errorf("invalid step count %q", args[0])
					}
					steps = n
				}
				return withMigrator(func(m *migrate.Migrate) error {
					if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("migrate down: %w", err)
					}
					fmt.Printf("rolled back %d migration(s)\n", steps)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version: %w", err)
				}
				return withMigrator(func(m *migrate.Migrate) error {
					if err := m.Force(version); err != nil {
						return fmt.Errorf("force version: %w", err)
					}
					fmt.Printf("forced version to %d\n", version)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *migrate.Migrate) error {
					v, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Println("no migrations applied")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Printf("version=%d dirty=%t\n", v, dirty)
					return nil
				})
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func withMigrator(fn func(m *migrate.Migrate) error) error {
	_ = godotenv.Load()

	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	if dsn == "" {
		return errors.New("POSTGRES_DSN is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("db driver: %w", err)
	}

	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	return fn(m)
}
