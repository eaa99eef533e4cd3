package commands

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"c4ghfs/internal/common"
	"c4ghfs/internal/vfs"
)

var lsLong bool

var lsCmd = &cobra.Command{
	Use:   "ls [dir]",
	Short: "List a directory as the overlay presents it",
	Long: `List a directory below the configured root with decrypted names and
plaintext sizes. Files that fail to parse are left out (see --log-level warn).

Examples:
  c4ghfs ls
  c4ghfs ls -l runs/2024
  c4ghfs --root /data/vault ls`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "show mode, size and modification time")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	dir := ""
	if len(args) > 0 {
		dir = common.NormalizePath(args[0])
	}

	table, err := openTable()
	if err != nil {
		return err
	}
	defer closeTable(table)

	ino := vfs.RootIno
	if dir != "" {
		e, err := table.LookupPath(dir)
		if err != nil {
			return err
		}
		ino = e.Attr().Ino
	}

	entries, err := table.ReadDir(ino)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, de := range entries {
		if lsLong {
			printLong(out, de.Name, de.Attr)
		} else {
			fmt.Fprintln(out, de.Name)
		}
	}
	return nil
}

func printLong(out io.Writer, name string, attr vfs.Attributes) {
	fmt.Fprintf(out, "%s %12d %s %s\n",
		fileMode(attr), attr.Size, attr.Mtime().Format("2006-01-02 15:04"), name)
}

// fileMode converts presented attributes to an fs.FileMode for display
func fileMode(attr vfs.Attributes) fs.FileMode {
	mode := fs.FileMode(attr.Perm() & 0o777)
	switch attr.FileType() {
	case vfs.FileTypeDirectory:
		mode |= fs.ModeDir
	case vfs.FileTypeSymlink:
		mode |= fs.ModeSymlink
	case vfs.FileTypeOther:
		mode |= fs.ModeIrregular
	}
	return mode
}
