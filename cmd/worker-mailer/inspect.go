package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/parser"
	"github.com/wujiyu305/worker-mailer/internal/transport/stdout"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <message.eml|->",
	Short: "Parse an RFC 5322 message and print a summary or its description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			raw []byte
			err error
		)
		if args[0] == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("inspect: %w", err)
		}

		return inspect(cmd.OutOrStdout(), raw, inspectJSON)
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the decoded message description as JSON")
	rootCmd.AddCommand(inspectCmd)
}

// inspect prints the parsed message. The JSON form can be fed back to send
// and compose.
func inspect(w io.Writer, raw []byte, asJSON bool) error {
	opts, err := parser.Parse(raw)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(opts)
	}

	msg, err := email.New(*opts)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	_, err = io.WriteString(w, stdout.Summary(msg))
	return err
}
