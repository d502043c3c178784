// Command goguard runs the MFA and client-key service and its admin tasks.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	envFile    string
	dev        bool
}

func main() {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "goguard",
		Short:         "TOTP MFA, client keys and a request gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flags.envFile == "" {
				return
			}
			if _, err := os.Stat(flags.envFile); err == nil {
				_ = godotenv.Load(flags.envFile)
			}
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", envOr("GOGUARD_CONFIG", ""), "path to config.yaml (env GOGUARD_CONFIG)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded when present")
	root.PersistentFlags().BoolVar(&flags.dev, "dev", false, "run an in-process Redis for the limiter and MFA throttle")

	root.AddCommand(newServeCmd(&flags))
	root.AddCommand(newKeysCmd(&flags))
	root.AddCommand(newConfigCmd(&flags))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
