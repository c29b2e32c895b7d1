package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/simpleremote/simpleremote/pkg/client"
)

var (
	serverAddr  string
	callTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "srx",
	Short: "SRX - remote execution client for the SimpleRemote agent",
	Long: `SRX - Command line interface for a SimpleRemote device-under-test agent.

Start jobs, stream their output, transfer file trees, and poke the agent:
  srx start systeminfo
  srx start --progress myscript.ps1
  srx download 'logs/run-*' ./fetched
  srx ping 192.168.1.255:8766`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// newClient builds the RPC client from the global flags
func newClient() *client.Client {
	return client.New(serverAddr, client.WithTimeout(callTimeout))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "127.0.0.1:8765",
		"Agent address (host:port)")
	rootCmd.PersistentFlags().DurationVar(&callTimeout, "timeout", 5*time.Second,
		"Network timeout for control connections")

	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newResultCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newKillCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newHeartbeatCmd())
	rootCmd.AddCommand(newPingCmd())
}
