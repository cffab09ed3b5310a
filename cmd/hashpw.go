package cmd

import (
	"fmt"
	"log"
	"syscall"

	"github.com/LeClarkGames/LeClark/leclark"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// passwordReader is a function type for reading passwords. It's really
// only here to make testing easier.
type passwordReader func() ([]byte, error)

var customPasswordReader passwordReader

var hashpwCmd = &cobra.Command{
	Use:   "hashpw",
	Short: "Hash a password for use as LECLARK_API_ADMIN_PASSWORD",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()

		readPassword := customPasswordReader
		if readPassword == nil {
			readPassword = func() ([]byte, error) {
				return term.ReadPassword(int(syscall.Stdin))
			}
		}

		var password string
		for {
			fmt.Fprint(out, "Enter password: ")
			passwordBytes, err := readPassword()
			if err != nil {
				log.Fatalf("error reading password: %v", err)
			}
			password = string(passwordBytes)
			fmt.Fprintln(out)

			fmt.Fprint(out, "Confirm password: ")
			confirmBytes, err := readPassword()
			if err != nil {
				log.Fatalf("error reading password: %v", err)
			}
			fmt.Fprintln(out)

			if password == string(confirmBytes) {
				break
			}
			fmt.Fprintln(out, "Passwords do not match. Please try again.")
		}

		hashed, err := leclark.HashPassword(password)
		if err != nil {
			log.Fatalf("error hashing password: %v", err)
		}
		fmt.Fprintln(out, hashed)
	},
}

func init() {
	rootCmd.AddCommand(hashpwCmd)
}
