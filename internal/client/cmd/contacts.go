package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var nickname string

var inviteCmd = &cobra.Command{
	Use:   "invite address",
	Short: "invite an address to become a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()
		return printResult(n.Chat().SendInvitation(cmd.Context(), args[0], nickname))
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept address",
	Short: "accept a pending invitation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()
		return printResult(n.Chat().AcceptInvitation(cmd.Context(), args[0], nickname))
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject address",
	Short: "reject a pending invitation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()
		return printResult(n.Chat().RejectInvitation(cmd.Context(), args[0]))
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove address",
	Short: "remove a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()
		return printResult(n.Chat().RemoveContact(cmd.Context(), args[0]))
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "list contacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()

		stop := spin("Fetching contacts")
		contacts, err := n.Chat().GetContacts(cmd.Context())
		stop()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tNICKNAME\tSTATUS")
		for _, c := range contacts {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.Address, c.Nickname, c.Status)
		}
		return w.Flush()
	},
}

var invitationsCmd = &cobra.Command{
	Use:   "invitations",
	Short: "list pending invitations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()

		stop := spin("Fetching invitations")
		invitations, err := n.Chat().GetPendingInvitations(cmd.Context())
		stop()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FROM\tNICKNAME\tSENT")
		for _, inv := range invitations {
			fmt.Fprintf(w, "%s\t%s\t%s\n", inv.From, inv.FromNickname, formatTime(inv.Timestamp))
		}
		return w.Flush()
	},
}

func formatTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format(time.DateTime)
}

func init() {
	inviteCmd.Flags().StringVarP(&nickname, "nickname", "n", "", "nickname for the contact")
	acceptCmd.Flags().StringVarP(&nickname, "nickname", "n", "", "nickname for the contact")
}
