package commands

import (
	"fmt"

	udrone "github.com/aparcar/udrone/pkg"
	"github.com/spf13/cobra"
)

func GetWhoisCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whois [group]",
		Short: "Discover drones answering for a group (default: all idle drones)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWhois,
	}

	cmd.Flags().String("board", "", "limit discovery to a specific board")
	cmd.Flags().Int("need", -1, "stop once this many replies arrived (negative: use the full retransmission budget, 0: fire once without waiting)")

	return cmd
}

func runWhois(cmd *cobra.Command, args []string) error {
	env, err := GetEnvironment()
	if err != nil {
		return err
	}

	group := udrone.AllDefaultGroup
	if len(args) == 1 {
		group = args[0]
	}
	board, _ := cmd.Flags().GetString("board")
	need, _ := cmd.Flags().GetInt("need")

	host, err := udrone.NewHost(env.Interface)
	if err != nil {
		return err
	}
	defer host.Close()

	answers, err := host.Whois(group, need, 0, board)
	if err != nil {
		return err
	}

	if len(answers) == 0 {
		fmt.Println("no drones found")
		return nil
	}
	for id, msg := range answers {
		fmt.Printf("%s\t%v\n", id, msg.Data)
	}
	return nil
}
