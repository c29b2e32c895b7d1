package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simpleremote/simpleremote/pkg/client"
	"github.com/simpleremote/simpleremote/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show client and agent versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("client: %s\n", version.GetShortVersion())

			v, err := newClient().GetVersion()
			if err != nil {
				fmt.Printf("agent:  unreachable (%v)\n", err)
				return nil
			}
			fmt.Printf("agent:  %s\n", v)
			return nil
		},
	}
}

func newHeartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Check that the agent is alive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := newClient().GetHeartbeat()
			if err != nil {
				return err
			}
			fmt.Printf("alive: %v\n", ok)
			return nil
		},
	}
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping <broadcast-addr:port>",
		Short: "Discover an agent via UDP broadcast",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, port, err := client.Discover(args[0], callTimeout)
			if err != nil {
				return err
			}
			fmt.Printf("agent at %s:%d\n", host, port)
			return nil
		},
	}
}
