// docketctl runs the scheduled docketflow jobs: batch distribution, the
// hearing disposition sweep, the outbox relay, integrity checks and
// migrations. It also mints bearer tokens for the operator API.
//
// Usage:
//
//	docketctl <command> [flags]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"docketflow/config"
)

type command struct {
	name    string
	summary string
	// needsDB reports whether the command opens a pool before running.
	needsDB bool
	flags   func(fs *pflag.FlagSet) any
	run     func(ctx context.Context, env *environment, opts any) error
}

func commands() []command {
	return []command{
		distributeCommand(),
		sweepCommand(),
		relayCommand(),
		integrityCommand(),
		migrateCommand(),
		tokenCommand(),
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// exitError carries a non-default exit code without an extra message.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e exitError) ExitCode() int { return e.code }

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stdout)
		return nil
	}

	var cmd *command
	for _, c := range commands() {
		if c.name == args[0] {
			cmd = &c
			break
		}
	}
	if cmd == nil {
		printUsage(stdout)
		return fmt.Errorf("unknown command %q", args[0])
	}

	flagSet := pflag.NewFlagSet("docketctl "+cmd.name, pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a YAML config file")
	opts := cmd.flags(flagSet)
	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	env := &environment{cfg: cfg, logger: config.NewLogger(cfg.Logging, os.Stderr), stdout: stdout}
	if cmd.needsDB {
		if err := env.open(ctx); err != nil {
			return err
		}
		defer env.close()
	}
	return cmd.run(ctx, env, opts)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: docketctl <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-11s %s\n", c.name, c.summary)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
