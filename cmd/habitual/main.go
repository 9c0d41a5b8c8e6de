package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/cli/habits"
	"github.com/julianstephens/habitual/internal/cli/reminders"
	"github.com/julianstephens/habitual/internal/cli/system"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/constants"
	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path." type:"path" default:"~/.config/habitual/config.yaml"`

	Init      system.InitCmd         `cmd:"" help:"Write the default config and initialize storage."`
	Migrate   system.MigrateCmd      `cmd:"" help:"Run database migrations."`
	Doctor    system.DoctorCmd       `cmd:"" help:"Run health checks and diagnostics."`
	Register  system.RegisterCmd     `cmd:"" help:"Create an account on the remote backend."`
	Login     system.LoginCmd        `cmd:"" help:"Sign in to the remote backend."`
	Logout    system.LogoutCmd       `cmd:"" help:"Sign out and cancel this device's reminders."`
	Whoami    system.WhoamiCmd       `cmd:"" help:"Show the signed-in user."`
	Daemon    system.DaemonCmd       `cmd:"" help:"Run the reminder daemon."`
	Keyring   system.KeyringCmd      `cmd:"" help:"Manage credentials in the OS keyring."`
	Habit     habits.HabitCmd        `cmd:"" help:"Manage habits."`
	Reminders reminders.RemindersCmd `cmd:"" help:"Inspect and resync reminder triggers."`
}

// Commands that open storage themselves or work without it.
var skipLoad = map[string]bool{
	"init":    true,
	"migrate": true,
	"doctor":  true,
	"keyring": true,
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit tracker with daily reminders"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Debug:     cfg.Debug,
		Level:     cfg.LogLevel,
		ConfigDir: cfg.ConfigDir,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	appCtx, err := cli.Build(cfg)
	if err != nil {
		apperrors.Fatal(err)
	}
	appCtx = appCtx.WithContext(context.Background())

	command := strings.Fields(kctx.Command())
	if len(command) > 0 && !skipLoad[command[0]] {
		if err := appCtx.Load(appCtx.Context()); err != nil {
			apperrors.Fatal(err)
		}
	}

	err = kctx.Run(appCtx)
	if cerr := appCtx.Close(); cerr != nil {
		logger.Warn("Failed to close storage", "error", cerr)
	}
	apperrors.Fatal(err)
}
