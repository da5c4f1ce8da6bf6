package commands

import (
	"encoding/json"
	"fmt"
	"time"

	udrone "github.com/aparcar/udrone/pkg"
	"github.com/spf13/cobra"
)

// GetRunCommand exercises the full group lifecycle (create, assign, call,
// reset) in a single process, since the core deliberately persists no
// group state across restarts (spec non-goal) and this driver has no
// interactive shell to keep a process alive across several commands.
func GetRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <group-prefix> <max-nodes> <command-type>",
		Short: "Create a group, assign idle drones, dispatch one command, then reset the group",
		Args:  cobra.ExactArgs(3),
		RunE:  runRun,
	}

	cmd.Flags().Bool("absolute", false, "treat group-prefix as an absolute, already-unique group id")
	cmd.Flags().Int("min-nodes", 0, "minimum drones required (default: max-nodes, or 1 if max-nodes is 0)")
	cmd.Flags().String("board", "", "limit assignment to a specific board")
	cmd.Flags().String("data", "", "JSON object sent as the command's data payload")
	cmd.Flags().Duration("timeout", 60*time.Second, "overall timeout for the group request")
	cmd.Flags().String("how", "", `reset mode applied at the end, e.g. "system"`)

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := GetEnvironment()
	if err != nil {
		return err
	}

	prefix := args[0]
	var maxNodes int
	if _, err := fmt.Sscanf(args[1], "%d", &maxNodes); err != nil {
		return fmt.Errorf("invalid max-nodes %q: %w", args[1], err)
	}
	msgType := args[2]

	absolute, _ := cmd.Flags().GetBool("absolute")
	minNodes, _ := cmd.Flags().GetInt("min-nodes")
	board, _ := cmd.Flags().GetString("board")
	rawData, _ := cmd.Flags().GetString("data")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	how, _ := cmd.Flags().GetString("how")

	var data udrone.Data
	if rawData != "" {
		if err := json.Unmarshal([]byte(rawData), &data); err != nil {
			return fmt.Errorf("invalid --data JSON: %w", err)
		}
	}

	host, err := udrone.NewHost(env.Interface)
	if err != nil {
		return err
	}
	defer host.Close()

	group, err := host.Group(prefix, absolute)
	if err != nil {
		return err
	}

	members, err := group.Assign(maxNodes, minNodes, board)
	if err != nil {
		return err
	}
	fmt.Printf("assigned: %v\n", members)

	answers, err := group.Call(msgType, data, timeout)
	if err != nil {
		_ = group.Reset(how)
		return err
	}
	for id, msg := range answers {
		fmt.Printf("%s\t%v\n", id, msg.Data)
	}

	return group.Reset(how)
}
