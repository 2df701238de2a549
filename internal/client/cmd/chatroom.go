package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	page     int
	pageSize int
)

var chatroomCmd = &cobra.Command{
	Use:   "chatroom",
	Short: "manage chatrooms",
}

var chatroomCreateCmd = &cobra.Command{
	Use:   "create participant",
	Short: "create a chatroom with a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()
		return printResult(n.Chat().CreateChatroom(cmd.Context(), args[0]))
	},
}

var chatroomAcceptCmd = &cobra.Command{
	Use:   "accept process-id",
	Short: "accept a chatroom a contact created",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()
		return printResult(n.Chat().AcceptChatroom(cmd.Context(), args[0]))
	},
}

var chatroomJoinCmd = &cobra.Command{
	Use:   "join process-id",
	Short: "join a chatroom process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()
		n.Watch(args[0])
		return printResult(n.Chat().JoinChatroom(cmd.Context(), args[0]))
	},
}

var chatroomListCmd = &cobra.Command{
	Use:   "list",
	Short: "list chatrooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()

		stop := spin("Fetching chatrooms")
		rooms, err := n.Chat().GetChatrooms(cmd.Context())
		stop()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROCESS\tPARTICIPANTS\tACCEPTED")
		for _, r := range rooms {
			fmt.Fprintf(w, "%s\t%s\t%t\n", r.ProcessID, strings.Join(r.Participants, ","), r.Accepted)
		}
		return w.Flush()
	},
}

var sendCmd = &cobra.Command{
	Use:   "send process-id message",
	Short: "send a message to a chatroom",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()
		n.Watch(args[0])
		return printResult(n.Chat().SendMessage(cmd.Context(), args[0], strings.Join(args[1:], " ")))
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages process-id",
	Short: "list chatroom messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()
		n.Watch(args[0])

		stop := spin("Fetching messages")
		messages, err := n.Chat().GetMessages(cmd.Context(), args[0], page, pageSize)
		stop()
		if err != nil {
			return err
		}
		for _, m := range messages {
			fmt.Printf("[%s] %s: %s\n", formatTime(m.Timestamp), m.Sender, m.Content)
		}
		return nil
	},
}

func init() {
	chatroomCmd.AddCommand(chatroomCreateCmd)
	chatroomCmd.AddCommand(chatroomAcceptCmd)
	chatroomCmd.AddCommand(chatroomJoinCmd)
	chatroomCmd.AddCommand(chatroomListCmd)

	messagesCmd.Flags().IntVar(&page, "page", 1, "page number")
	messagesCmd.Flags().IntVar(&pageSize, "size", 50, "messages per page")
}
