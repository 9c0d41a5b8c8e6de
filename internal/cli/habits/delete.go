package habits

import (
	"github.com/julianstephens/habitual/internal/cli"
)

type DeleteCmd struct {
	ID string `arg:"" help:"Habit ID."`
}

func (c *DeleteCmd) Run(ctx *cli.Context) error {
	wizard := ctx.NewWizard()
	defer wizard.Close()

	if err := wizard.Delete(ctx.Context(), c.ID); err != nil {
		return err
	}
	cli.Success(ctx.Out, "Deleted habit %s", c.ID)
	return nil
}
