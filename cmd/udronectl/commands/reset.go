package commands

import (
	"fmt"

	udrone "github.com/aparcar/udrone/pkg"
	"github.com/spf13/cobra"
)

func GetResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <target>",
		Short: "Reset a drone or group id directly, bypassing group membership tracking",
		Args:  cobra.ExactArgs(1),
		RunE:  runReset,
	}

	cmd.Flags().String("how", "", `reset mode, e.g. "system" to request a full reboot`)

	return cmd
}

func runReset(cmd *cobra.Command, args []string) error {
	env, err := GetEnvironment()
	if err != nil {
		return err
	}
	how, _ := cmd.Flags().GetString("how")

	host, err := udrone.NewHost(env.Interface)
	if err != nil {
		return err
	}
	defer host.Close()

	answers, err := host.Reset(args[0], how, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%d drone(s) acknowledged reset\n", len(answers))
	return nil
}
