package commands

import "github.com/spf13/cobra"

// GetRootCommand returns the udronectl root command tree. udronectl is a
// thin driver over the udrone package: it parses flags and reads one
// environment variable, then calls straight into the package's
// programmatic surface.
func GetRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "udronectl",
		Short: "udronectl drives a udrone host against a fleet of multicast drones.",
		Long: `udronectl is a command line driver for the udrone host coordination runtime.
It can discover idle drones, assign them into a group, dispatch a command, and reset them.

One environment variable is required:
- UDRONE_IF: the network interface whose address is used for multicast egress

For the protocol this drives, see the udrone package documentation.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		GetWhoisCommand(),
		GetResetCommand(),
		GetRunCommand(),
		GetVersionCommand(),
	)

	return cmd
}
