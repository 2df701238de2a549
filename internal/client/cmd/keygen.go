package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rudransh-shrivastava/ao-chat/internal/signer"
	"github.com/spf13/cobra"
)

var force bool

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "generate a wallet key",
	Long:  `generate an Ed25519 wallet key at the configured key file and print its address`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfg.KeyFile); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to replace it", cfg.KeyFile)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.KeyFile), 0o700); err != nil {
			return err
		}

		key, err := signer.GenerateKey()
		if err != nil {
			return err
		}
		if err := signer.SaveKeyFile(cfg.KeyFile, key); err != nil {
			return err
		}
		s, err := signer.NewEd25519Signer(key)
		if err != nil {
			return err
		}
		log.WithField("path", cfg.KeyFile).Info("Wallet key written")
		fmt.Println(s.Address())
		return nil
	},
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "print the wallet address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := signer.LoadKeyFile(cfg.KeyFile)
		if err != nil {
			return err
		}
		fmt.Println(s.Address())
		return nil
	},
}

func init() {
	keygenCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing key file")
}
