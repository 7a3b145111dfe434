package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/upb/coursehub/app"
	"github.com/upb/coursehub/handlers"
	"github.com/upb/coursehub/identity"
	"golang.org/x/term"
)

// readPasswordFunc reads a password without echo
var readPasswordFunc = term.ReadPassword

func newLoginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password and keep the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			if email == "" {
				value, err := prompt(cmd.ErrOrStderr(), in, "Email: ")
				if err != nil {
					return err
				}
				email = value
			}
			password, err := promptPassword(cmd.ErrOrStderr(), in, "Password: ")
			if err != nil {
				return err
			}

			return withSession(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				p, err := deps.Sessions.Login(ctx, email, password)
				if err != nil {
					return errors.New(handlers.AuthErrorMessage(identity.KindOf(err)))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", describe(p))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (prompted when empty)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				if !deps.Sessions.State().Authenticated() {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				if err := deps.Sessions.Logout(ctx); err != nil {
					return errors.New(handlers.AuthErrorMessage(identity.KindOf(err)))
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				state := deps.Sessions.State()
				if !state.Authenticated() {
					fmt.Fprintln(cmd.OutOrStdout(), "anonymous")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), describe(state.Principal))
				return nil
			})
		},
	}
}

// withSession wires the application, waits for the stored session and runs fn
func withSession(cmd *cobra.Command, fn func(ctx context.Context, deps *app.Dependencies) error) error {
	ctx := commandContext(cmd)
	deps, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background()) //nolint:errcheck

	if err := waitForSession(ctx, deps); err != nil {
		return err
	}
	return fn(ctx, deps)
}

func describe(p *identity.Principal) string {
	if email := p.EmailAddress(); email != "" {
		return fmt.Sprintf("%s <%s>", p.Name(), email)
	}
	return p.Name()
}

func prompt(out io.Writer, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo from a terminal, or a plain line otherwise
func promptPassword(out io.Writer, in *bufio.Reader, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(out, in, label)
	}
	fmt.Fprint(out, label)
	raw, err := readPasswordFunc(fd)
	fmt.Fprintln(out) // newline after hidden input
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}
