package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dumpMetaTag    string
	dumpMetaIndex  int
	dumpMetaOutput string
	dumpMetaForce  bool
)

var dumpMetaCmd = &cobra.Command{
	Use:   "dumpmeta <file>",
	Short: "Dump one metadata entry's raw bytes",
	Args:  cobra.ExactArgs(1),
	RunE:  runDumpMeta,
}

func init() {
	dumpMetaCmd.Flags().StringVar(&dumpMetaTag, "tag", "", "4-character metadata FourCC tag (required)")
	dumpMetaCmd.Flags().IntVar(&dumpMetaIndex, "index", 0, "0-based index among entries sharing tag")
	dumpMetaCmd.Flags().StringVar(&dumpMetaOutput, "output", "", "write to this file instead of stdout")
	dumpMetaCmd.Flags().BoolVar(&dumpMetaForce, "force", false, "overwrite an existing --output file")
	_ = dumpMetaCmd.MarkFlagRequired("tag")
	rootCmd.AddCommand(dumpMetaCmd)
}

func runDumpMeta(_ *cobra.Command, args []string) error {
	tag, err := fourCCFromString(dumpMetaTag)
	if err != nil {
		return err
	}

	c, err := openImage(args[0], "")
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	data, err := c.Metadata(tag, dumpMetaIndex)
	if err != nil {
		return err
	}

	if dumpMetaOutput == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	return writeOutputFile(dumpMetaOutput, data, dumpMetaForce)
}

// writeOutputFile writes data to path, refusing to clobber an existing file
// unless force is set.
func writeOutputFile(path string, data []byte, force bool) error {
	if !force {
		if _, err := fs.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
