package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/storage"
)

// migrator is implemented by backends whose schema this binary owns.
type migrator interface {
	Open(ctx context.Context) error
	Migrate(logFn func(string)) (int, error)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	logFn := func(msg string) { fmt.Fprintln(ctx.Out, msg) }

	if err := ctx.Registry.Open(ctx.Context()); err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	count, err := ctx.Registry.Migrate(logFn)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if ctx.Backend != storage.Backend(ctx.Registry) {
		m, ok := ctx.Backend.(migrator)
		if !ok {
			fmt.Fprintf(ctx.Out, "The %s schema is managed by the project; skipping.\n", ctx.Config.Backend)
		} else {
			if err := m.Open(ctx.Context()); err != nil {
				return fmt.Errorf("failed to load %s database: %w", ctx.Config.Backend, err)
			}
			n, err := m.Migrate(logFn)
			if err != nil {
				return fmt.Errorf("%s migration failed: %w", ctx.Config.Backend, err)
			}
			count += n
		}
	}

	if count == 0 {
		fmt.Fprintln(ctx.Out, "No migrations to apply. Database is up to date.")
	} else {
		fmt.Fprintf(ctx.Out, "\nSuccessfully applied %d migration(s).\n", count)
	}
	return nil
}
