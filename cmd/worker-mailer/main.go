// Command worker-mailer composes MIME messages and delivers them through a
// configurable transport. It also serves an HTTP API and a local capture
// SMTP server.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
