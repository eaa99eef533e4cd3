package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"c4ghfs/internal/crypt4gh"
)

var headerCmd = &cobra.Command{
	Use:   "header <file>",
	Short: "Inspect the header of a Crypt4GH container",
	Long: `Parse the header of a container on disk and print its packet layout and the
plaintext size the overlay reports for it. Packets are not decrypted.

Example:
  c4ghfs header /data/vault/sample.bam.c4gh`,
	Args: cobra.ExactArgs(1),
	RunE: runHeader,
}

func init() {
	rootCmd.AddCommand(headerCmd)
}

func runHeader(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	h, err := crypt4gh.ParseHeader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Version: %d\n", h.Version)
	fmt.Fprintf(out, "Packets: %d\n", h.PacketCount)
	for i, plen := range h.PacketLengths {
		fmt.Fprintf(out, "  packet %d: %d bytes\n", i, plen)
	}
	fmt.Fprintf(out, "Header length: %d\n", h.Length)
	fmt.Fprintf(out, "Physical size: %d\n", info.Size())

	plain, err := crypt4gh.DefaultFraming.PlaintextSize(info.Size(), h.Length)
	if err != nil {
		fmt.Fprintf(out, "Plaintext size: invalid (%v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "Segments: %d\n", crypt4gh.DefaultFraming.SegmentCount(info.Size()))
	fmt.Fprintf(out, "Plaintext size: %d\n", plain)
	return nil
}
