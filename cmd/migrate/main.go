// Command migrate applies the Postgres schema used by the postgres
// checkpoint and cache backends.
//
//	migrate [-config path] [-dsn url] up|down|version|steps N|force V
package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/pairwise/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

const envDSN = "PAIRWISE_DB_DSN"

var errUsage = errors.New("usage: migrate [-config path] [-dsn url] up|down|version|steps N|force V")

type command struct {
	name string
	n    int
}

func main() {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dsn := fs.String("dsn", "", "connection string (default $PAIRWISE_DB_DSN, then the [database] config section)")
	configPath := fs.String("config", config.BaseConfigFile, "base config file")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cmd, err := parseCommand(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	target, err := resolveDSN(*dsn, *configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "resolve dsn:", err)
		os.Exit(1)
	}

	if err := run(cmd, target, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}

	cmd := command{name: args[0]}
	switch cmd.name {
	case "up", "down", "version":
		if len(args) != 1 {
			return command{}, errUsage
		}
	case "steps", "force":
		if len(args) != 2 {
			return command{}, errUsage
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("%s: invalid count %q", cmd.name, args[1])
		}
		if cmd.name == "steps" && n == 0 {
			return command{}, fmt.Errorf("steps: count must be non-zero")
		}
		cmd.n = n
	default:
		return command{}, fmt.Errorf("unknown command %q\n%w", cmd.name, errUsage)
	}
	return cmd, nil
}

func run(cmd command, dsn string, out io.Writer) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	switch cmd.name {
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Fprintln(out, "version: none")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version: %d, dirty: %v\n", v, dirty)
		return nil
	case "force":
		if err := m.Force(cmd.n); err != nil {
			return err
		}
		fmt.Fprintf(out, "forced to version %d\n", cmd.n)
		return nil
	}

	var applyErr error
	switch cmd.name {
	case "up":
		applyErr = m.Up()
	case "down":
		applyErr = m.Down()
	case "steps":
		applyErr = m.Steps(cmd.n)
	}

	if errors.Is(applyErr, migrate.ErrNoChange) {
		fmt.Fprintln(out, "no change")
		return nil
	}
	if applyErr != nil {
		return applyErr
	}
	fmt.Fprintf(out, "%s: ok\n", cmd.name)
	return nil
}

// resolveDSN prefers the flag, then PAIRWISE_DB_DSN, then the database
// section of the engine config with PAIRWISE_DB_* overrides.
func resolveDSN(flagValue, configPath string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(envDSN); v != "" {
		return v, nil
	}

	db, err := config.DatabaseConfig(configPath)
	if err != nil {
		return "", err
	}
	return db.Dsn(), nil
}
