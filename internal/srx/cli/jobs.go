package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/simpleremote/simpleremote/pkg/client"
)

func newCompletionListener() (*client.CompletionListener, error) {
	return client.NewCompletionListener(0)
}

func newProgressListener() (*client.ProgressListener, error) {
	return client.NewProgressListener(0)
}

func newStartCmd() *cobra.Command {
	var (
		notify   bool
		progress bool
		wait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start <program> [args...]",
		Short: "Start a job on the agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			program := args[0]
			argStr := strings.Join(args[1:], " ")

			if !notify && !progress {
				id, err := c.StartJob(program, argStr)
				if err != nil {
					return err
				}
				fmt.Printf("job %d started\n", id)
				return nil
			}

			return startWithCallbacks(cmd, program, argStr, progress, wait)
		},
	}

	cmd.Flags().BoolVar(&notify, "notify", false, "Wait for the completion callback")
	cmd.Flags().BoolVar(&progress, "progress", false, "Stream live output (implies --notify)")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Minute, "How long to wait for completion")
	return cmd
}

// startWithCallbacks opens local callback listeners, starts the job
// against them, and relays what arrives.
func startWithCallbacks(cmd *cobra.Command, program, argStr string, withProgress bool, wait time.Duration) error {
	c := newClient()

	completion, err := newCompletionListener()
	if err != nil {
		return err
	}
	defer func() { _ = completion.Close() }()

	var id int64
	if withProgress {
		progressLn, err := newProgressListener()
		if err != nil {
			return err
		}
		defer func() { _ = progressLn.Close() }()

		id, err = c.StartJobWithProgress("", completion.Port(), progressLn.Port(), program, argStr)
		if err != nil {
			return err
		}
		fmt.Printf("job %d started, streaming output\n", id)

		for line := range progressLn.Lines() {
			fmt.Println(line)
		}
	} else {
		id, err = c.StartJobWithNotification("", completion.Port(), program, argStr)
		if err != nil {
			return err
		}
		fmt.Printf("job %d started, waiting for completion\n", id)
	}

	doneID, err := completion.Wait(wait)
	if err != nil {
		return err
	}
	fmt.Printf("job %d completed\n", doneID)
	return nil
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <job-id>",
		Short: "Force-terminate a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("bad job id %q", args[0])
			}
			if err := newClient().StopJob(id); err != nil {
				return err
			}
			fmt.Printf("job %d stopped\n", id)
			return nil
		},
	}
}

func newResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <job-id>",
		Short: "Fetch a finished job's buffered output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("bad job id %q", args[0])
			}
			out, err := newClient().GetJobResult(id)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := newClient().GetAllJobs()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("no jobs")
				return nil
			}

			ids := make([]int64, 0, len(jobs))
			for id := range jobs {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

			for _, id := range ids {
				state := "running"
				if jobs[id] {
					state = "done"
				}
				fmt.Printf("%6d  %s\n", id, state)
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <program> [args...]",
		Short: "Run a program fire-and-forget",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Run(args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Println("started")
			return nil
		},
	}
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <program> [args...]",
		Short: "Run a program and print its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := newClient().RunWithResult(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <process-name>",
		Short: "Kill processes on the agent host by image name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().KillProcess(args[0]); err != nil {
				return err
			}
			fmt.Printf("killed %s\n", args[0])
			return nil
		},
	}
}
