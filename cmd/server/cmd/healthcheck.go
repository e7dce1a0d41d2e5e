package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthcheckURL string

// healthcheckCmd probes the liveness endpoint. Container runtimes use
// it as a HEALTHCHECK without needing curl in the image.
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check whether the server is responding",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(healthcheckURL)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check failed: status %d", resp.StatusCode)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

func init() {
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "http://localhost:8080/healthz", "health endpoint to probe")
}
