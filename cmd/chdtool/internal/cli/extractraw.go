package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	extractRawOutput      string
	extractRawInputParent string
	extractRawForce       bool
)

var extractRawCmd = &cobra.Command{
	Use:   "extractraw <file>",
	Short: "Extract the full decompressed logical byte stream",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtractRaw,
}

func init() {
	extractRawCmd.Flags().StringVar(&extractRawOutput, "output", "", "destination file (required)")
	extractRawCmd.Flags().StringVar(&extractRawInputParent, "inputparent", "", "parent CHD for delta images")
	extractRawCmd.Flags().BoolVar(&extractRawForce, "force", false, "overwrite an existing --output file")
	_ = extractRawCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(extractRawCmd)
}

func runExtractRaw(_ *cobra.Command, args []string) error {
	if !extractRawForce {
		if _, err := fs.Stat(extractRawOutput); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", extractRawOutput)
		}
	}

	c, err := openImage(args[0], extractRawInputParent)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	out, err := fs.Create(extractRawOutput)
	if err != nil {
		return fmt.Errorf("create %s: %w", extractRawOutput, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, c.LogicalReader()); err != nil {
		return fmt.Errorf("extract %s: %w", args[0], err)
	}

	return nil
}
