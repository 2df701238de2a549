package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/rudransh-shrivastava/ao-chat/internal/p2p"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dialCmd = &cobra.Command{
	Use:   "dial address",
	Short: "start a call with a contact",
	Long: `negotiate a call with a contact, routed over libp2p when the contact's
address is known and relayed through the registry otherwise. Lines typed on
stdin are sent over the call's data channel.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()

		stop := spin(fmt.Sprintf("Calling %s", args[0]))
		s, err := n.Connections().Start(cmd.Context(), args[0])
		stop()
		if err != nil {
			return err
		}
		log.WithField("strategy", s.Describe()).Info("Call connected")
		return chat(cmd.Context(), s)
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "wait for incoming calls",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := startNode(cmd)
		if err != nil {
			return err
		}
		defer n.Close()

		for _, addr := range n.ListenAddrs() {
			fmt.Println(addr)
		}
		log.WithField("address", n.Address()).Info("Waiting for calls")

		select {
		case <-cmd.Context().Done():
			return nil
		case s := <-n.Incoming():
			log.WithFields(logrus.Fields{
				"peer":     s.PeerID(),
				"strategy": s.Describe(),
			}).Info("Incoming call")
			defer s.Close()
			return chat(cmd.Context(), s)
		}
	},
}

// chat copies stdin lines to s and prints what the peer sends until either
// side hangs up.
func chat(ctx context.Context, s *p2p.Session) error {
	select {
	case <-s.Opened():
	case <-s.Done():
		return fmt.Errorf("call with %s ended before it opened", s.PeerID())
	case <-ctx.Done():
		return nil
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Done():
			log.WithField("peer", s.PeerID()).Info("Call ended")
			return nil
		case data := <-s.Recv():
			fmt.Printf("%s: %s\n", s.PeerID(), data)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := s.Send([]byte(line)); err != nil {
				return err
			}
		}
	}
}
