package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the Mimic API with the configured wallet",
	Long: `Sign in to the Mimic API by signing a nonce with the configured wallet.

The access token and API key are kept in the session store until they
expire. 'mimic-swap swap' signs in on its own when no session is stored.`,
	Args: cobra.NoArgs,
	Run:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session of the configured wallet",
	Args:  cobra.NoArgs,
	Run:   runLogout,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	a := mustLoadApp(cmd)
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	signer, err := a.signer()
	if err != nil {
		a.fail(err)
	}
	ac, err := a.authClient()
	if err != nil {
		a.fail(err)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !a.json {
		s.Suffix = " Signing in..."
		s.Start()
	}
	session, err := ac.Ensure(ctx, signer)
	if !a.json {
		s.Stop()
	}
	if err != nil {
		a.fail(err)
	}

	if a.json {
		printJSON(map[string]string{"address": session.Address.Hex()})
		return
	}
	color.Green("\n✓ Signed in as %s\n", session.Address.Hex())
}

func runLogout(cmd *cobra.Command, args []string) {
	a := mustLoadApp(cmd)
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	signer, err := a.signer()
	if err != nil {
		a.fail(err)
	}
	ac, err := a.authClient()
	if err != nil {
		a.fail(err)
	}
	if err := ac.Logout(ctx, signer.Address()); err != nil {
		a.fail(err)
	}

	printSuccess(fmt.Sprintf("Session of %s removed.", signer.Address().Hex()))
}
