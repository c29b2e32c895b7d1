package cli

import (
	"fmt"
	"net"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/simpleremote/simpleremote/pkg/client"
)

func newUploadCmd() *cobra.Command {
	var (
		overwrite bool
		port      int
	)

	cmd := &cobra.Command{
		Use:   "upload <local-path> <remote-dir>",
		Short: "Send a local file or directory tree to the agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, remote := args[0], args[1]
			c := newClient()

			bound, err := c.Upload(remote, overwrite, port)
			if err != nil {
				return err
			}

			addr := net.JoinHostPort(agentHost(), fmt.Sprintf("%d", bound))
			sent, err := client.SendTree(addr, local, callTimeout)
			if err != nil {
				return err
			}
			fmt.Printf("uploaded %d bytes to %s\n", sent, remote)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files at the destination")
	cmd.Flags().IntVar(&port, "port", 0, "Request a specific transfer port (0 = agent picks)")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var (
		port     int
		gzipPath string
	)

	cmd := &cobra.Command{
		Use:   "download <remote-path> [local-dir]",
		Short: "Fetch a remote file, directory, or glob from the agent",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := args[0]
			dest := "."
			if len(args) == 2 {
				dest = args[1]
			}

			c := newClient()
			bound, total, err := c.Download(remote, port)
			if err != nil {
				return err
			}
			addr := net.JoinHostPort(agentHost(), fmt.Sprintf("%d", bound))

			if gzipPath != "" {
				return saveArchiveGzipped(addr, gzipPath, total)
			}

			got, err := client.ReceiveTree(addr, dest, callTimeout)
			if err != nil {
				return err
			}
			fmt.Printf("downloaded %d of %d bytes into %s\n", got, total, dest)
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Request a specific transfer port (0 = agent picks)")
	cmd.Flags().StringVar(&gzipPath, "gzip", "", "Save the raw archive gzip-compressed to this file instead of extracting")
	return cmd
}

// saveArchiveGzipped streams the raw tar archive through gzip to disk
func saveArchiveGzipped(addr, path string, total int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	zw := gzip.NewWriter(f)
	n, err := client.ReceiveArchive(addr, zw, callTimeout)
	if err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	fmt.Printf("saved %d archive bytes (%d content bytes advertised) to %s\n", n, total, path)
	return nil
}

// agentHost extracts the host half of the --server flag
func agentHost() string {
	host, _, err := net.SplitHostPort(serverAddr)
	if err != nil {
		return serverAddr
	}
	return host
}
