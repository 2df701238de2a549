package cmd

import (
	"fmt"
	"strings"

	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/rudransh-shrivastava/ao-chat/internal/rpc"
	"github.com/spf13/cobra"
)

var (
	callTarget  string
	callReply   bool
	callRetries int
)

var callCmd = &cobra.Command{
	Use:   "call action [key=value...]",
	Short: "send an action to a process",
	Long: `send an action with string parameters to a process and print the reply.
Actions that expect a reply wait for it unless --reply=false is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}

		var opts []rpc.CallOption
		if cmd.Flags().Changed("reply") {
			opts = append(opts, rpc.WithReply(callReply))
		}
		if cmd.Flags().Changed("retries") {
			opts = append(opts, rpc.WithMaxRetries(callRetries))
		}

		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()

		stop := spin(fmt.Sprintf("Calling %s", args[0]))
		res := n.RPC().Call(cmd.Context(), protocol.Action(args[0]), params, callTarget, opts...)
		stop()
		return printResult(res)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health [process]",
	Short: "check whether a process answers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		process := cfg.Endpoints.Process
		if len(args) == 1 {
			process = args[0]
		}

		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()

		stop := spin("Checking health")
		ok := n.Chat().CheckHealth(cmd.Context(), process)
		stop()
		if !ok {
			return fmt.Errorf("process %s is not healthy", process)
		}
		fmt.Printf("%s is healthy\n", process)
		return nil
	},
}

func parseParams(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		params[key] = value
	}
	return params, nil
}

func printResult(res protocol.Result) error {
	if !res.Success {
		return res.Err()
	}
	if len(res.Data) > 0 {
		fmt.Println(string(res.Data))
	} else {
		fmt.Println("ok")
	}
	return nil
}

func init() {
	callCmd.Flags().StringVarP(&callTarget, "target", "t", "", "target process, defaults to the registry")
	callCmd.Flags().BoolVar(&callReply, "reply", true, "wait for the process reply")
	callCmd.Flags().IntVar(&callRetries, "retries", 0, "retries after the first attempt, defaults to the configured value")
}
