package commands

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"c4ghfs/internal/vfs"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show the attributes presented for a path",
	Long: `Resolve a path below the configured root by its presented name and print
the attributes a kernel would receive, together with the underlying name
and, for containers, the header length.

Examples:
  c4ghfs stat sample.bam
  c4ghfs stat runs/r1.vcf`,
	Args: cobra.ExactArgs(1),
	RunE: runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func runStat(cmd *cobra.Command, args []string) error {
	table, err := openTable()
	if err != nil {
		return err
	}
	defer closeTable(table)

	e, err := table.LookupPath(args[0])
	if err != nil {
		return err
	}
	log.Tracef("[CLI] stat %s", e)

	attr := e.Attr()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name: %s\n", e.DisplayName())
	fmt.Fprintf(out, "Underlying: %s\n", e.UnderlyingName())
	if e.IsEncrypted() && attr.FileType() == vfs.FileTypeRegularFile {
		hlen, err := e.HeaderLength()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Encrypted: yes (header %d bytes)\n", hlen)
	} else {
		fmt.Fprintf(out, "Encrypted: no\n")
	}
	fmt.Fprintf(out, "Type: %s\n", attr.FileType())
	fmt.Fprintf(out, "Size: %d\n", attr.Size)
	fmt.Fprintf(out, "Blocks: %d (%d-byte)\n", attr.Blocks, attr.Blksize)
	fmt.Fprintf(out, "Mode: %s (%04o)\n", fileMode(attr), attr.Perm())
	fmt.Fprintf(out, "Inode: %d\n", attr.Ino)
	fmt.Fprintf(out, "Links: %d\n", attr.Nlink)
	fmt.Fprintf(out, "Uid: %d\n", attr.Uid)
	fmt.Fprintf(out, "Gid: %d\n", attr.Gid)
	fmt.Fprintf(out, "Access: %s\n", attr.Atime().Format("2006-01-02 15:04:05.000000000"))
	fmt.Fprintf(out, "Modify: %s\n", attr.Mtime().Format("2006-01-02 15:04:05.000000000"))
	fmt.Fprintf(out, "Change: %s\n", attr.Ctime().Format("2006-01-02 15:04:05.000000000"))
	return nil
}
