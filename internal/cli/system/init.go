package system

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/storage"
)

type InitCmd struct {
	Force bool `help:"Delete the local database before initializing. All registered reminders are lost."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if ctx.Config.ConfigDir != "" {
		path := filepath.Join(ctx.Config.ConfigDir, constants.ConfigFileName)
		wrote, err := config.WriteDefault(path)
		if err != nil {
			return err
		}
		if wrote {
			fmt.Fprintf(ctx.Out, "Wrote default config to: %s\n", path)
		}
	}

	if c.Force {
		dbPath := ctx.Registry.Location()
		if _, err := os.Stat(dbPath); err == nil {
			if err := ctx.Registry.Close(); err != nil {
				return fmt.Errorf("failed to close existing database: %w", err)
			}
			if err := os.Remove(dbPath); err != nil {
				return fmt.Errorf("failed to delete existing database: %w", err)
			}
			fmt.Fprintf(ctx.Out, "Deleted existing database at: %s\n", dbPath)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to access existing database: %w", err)
		}
	}

	if err := ctx.Registry.Init(ctx.Context()); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Initialized local database at: %s\n", ctx.Registry.Location())

	if ctx.Backend != storage.Backend(ctx.Registry) {
		if err := ctx.Backend.Init(ctx.Context()); err != nil {
			return fmt.Errorf("failed to initialize %s backend: %w", ctx.Config.Backend, err)
		}
		fmt.Fprintf(ctx.Out, "Connected to %s backend at: %s\n", ctx.Config.Backend, ctx.Backend.Location())
	}
	return nil
}
