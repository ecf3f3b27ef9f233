// mdplaned is the admission and distribution server: capability-URL
// auth, rate limiting, webhook delivery, WebSocket event subscriptions
// and the background janitors that keep claim/rate-limit/delivery state
// bounded.
//
// Available commands:
//   - serve: Start the HTTP server
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mdplaned",
	Short: "mdplaned - capability-URL admission and event-distribution server",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
