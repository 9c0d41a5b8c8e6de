package system

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
)

type LoginCmd struct {
	Email         string `required:"" help:"Account email."`
	PasswordStdin bool   `help:"Read the password from stdin instead of prompting." name:"password-stdin"`
}

var promptPassword = func() (string, error) {
	var password string
	err := huh.NewInput().
		Title("Password").
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Run()
	return password, err
}

func (c *LoginCmd) Run(ctx *cli.Context) error {
	authenticator, ok := ctx.Auth.(cli.Authenticator)
	if !ok {
		return fmt.Errorf("login is only available with the supabase backend (current: %s)", ctx.Config.Backend)
	}

	password, err := readPassword(ctx, c.PasswordStdin)
	if err != nil {
		return err
	}

	user, err := authenticator.Login(ctx.Context(), c.Email, password)
	if err != nil {
		return err
	}
	cli.Success(ctx.Out, "Signed in as %s", user.Email)
	resyncAfterSignIn(ctx, user)
	return nil
}

type RegisterCmd struct {
	Email         string `required:"" help:"Account email."`
	PasswordStdin bool   `help:"Read the password from stdin instead of prompting." name:"password-stdin"`
}

func (c *RegisterCmd) Run(ctx *cli.Context) error {
	authenticator, ok := ctx.Auth.(cli.Authenticator)
	if !ok {
		return fmt.Errorf("register is only available with the supabase backend (current: %s)", ctx.Config.Backend)
	}

	password, err := readPassword(ctx, c.PasswordStdin)
	if err != nil {
		return err
	}

	user, signedIn, err := authenticator.Register(ctx.Context(), c.Email, password)
	if err != nil {
		return err
	}
	if !signedIn {
		cli.Success(ctx.Out, "Account created for %s", user.Email)
		fmt.Fprintln(ctx.Out, "  Check your email to verify the account, then run 'habitual login'")
		return nil
	}
	cli.Success(ctx.Out, "Account created and signed in as %s", user.Email)
	resyncAfterSignIn(ctx, user)
	return nil
}

func readPassword(ctx *cli.Context, fromStdin bool) (string, error) {
	if !fromStdin {
		return promptPassword()
	}
	password, err := bufio.NewReader(ctx.In).ReadString('\n')
	if err != nil && password == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(password, "\r\n"), nil
}

func resyncAfterSignIn(ctx *cli.Context, user *models.User) {
	n, err := ctx.Resync(ctx.Context(), user)
	if err != nil {
		logger.Warn("Failed to resync reminders after sign-in", "error", err)
		cli.Warning(ctx.Out, "Could not load your habits to schedule reminders: %v", err)
		return
	}
	cli.Success(ctx.Out, "Scheduled %d reminder(s)", n)
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx *cli.Context) error {
	user, err := ctx.Auth.CurrentUser(ctx.Context())
	if err != nil {
		return err
	}
	if user == nil {
		fmt.Fprintln(ctx.Out, "Not signed in")
		return nil
	}

	n, err := ctx.Scheduler.CancelForUser(ctx.Context(), user.ID)
	if err != nil {
		logger.Warn("Failed to cancel reminders on logout", "error", err)
	}

	if authenticator, ok := ctx.Auth.(cli.Authenticator); ok {
		if err := authenticator.SignOut(ctx.Context()); err != nil {
			return err
		}
		cli.Success(ctx.Out, "Signed out")
	}
	cli.Success(ctx.Out, "Canceled %d reminder(s) on this device", n)
	return nil
}

type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(ctx *cli.Context) error {
	user, err := ctx.Auth.CurrentUser(ctx.Context())
	if err != nil {
		return err
	}
	if user == nil {
		fmt.Fprintln(ctx.Out, "Not signed in")
		return nil
	}

	fmt.Fprintf(ctx.Out, "%-10s %s\n", "User:", user.ID)
	if user.Email != "" {
		fmt.Fprintf(ctx.Out, "%-10s %s\n", "Email:", user.Email)
	}
	fmt.Fprintf(ctx.Out, "%-10s %s (%s)\n", "Backend:", ctx.Config.Backend, ctx.Backend.Location())
	fmt.Fprintf(ctx.Out, "%-10s %s\n", "Timezone:", ctx.Location)
	return nil
}
