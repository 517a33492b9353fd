package main

import (
	"github.com/spf13/cobra"

	"github.com/wujiyu305/worker-mailer/internal/email"
)

var (
	composeFlags          messageFlags
	composeWithTerminator bool
)

var composeCmd = &cobra.Command{
	Use:   "compose [message-file]",
	Short: "Print the composed MIME payload without delivering it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			opts email.Options
			err  error
		)
		if len(args) == 1 {
			opts, err = readOptions(args[0], cmd.InOrStdin())
		} else {
			opts, err = composeFlags.options()
		}
		if err != nil {
			return err
		}

		msg, err := email.New(opts)
		if err != nil {
			return err
		}

		payload := msg.Payload()
		if !composeWithTerminator {
			payload = email.StripTerminator(payload)
		}

		_, err = cmd.OutOrStdout().Write(payload)
		return err
	},
}

func init() {
	f := composeCmd.Flags()
	f.StringVar(&composeFlags.from, "from", "", "sender address")
	f.StringSliceVar(&composeFlags.to, "to", nil, "recipient address (repeatable)")
	f.StringSliceVar(&composeFlags.cc, "cc", nil, "carbon copy address (repeatable)")
	f.StringVar(&composeFlags.reply, "reply-to", "", "reply-to address")
	f.StringVarP(&composeFlags.subject, "subject", "s", "", "subject")
	f.StringVar(&composeFlags.text, "text", "", "plain text body")
	f.StringVar(&composeFlags.html, "html", "", "HTML body")
	f.StringArrayVarP(&composeFlags.attachments, "attach", "a", nil, "file to attach (repeatable)")
	f.StringArrayVarP(&composeFlags.headers, "header", "H", nil, `custom header "Name: value" (repeatable)`)
	f.BoolVar(&composeWithTerminator, "with-terminator", false, "keep the trailing SMTP data terminator line")

	rootCmd.AddCommand(composeCmd)
}
