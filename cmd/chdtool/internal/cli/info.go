package cli

import (
	"fmt"

	"github.com/nmoshiri/go-chd/chd"
	"github.com/spf13/cobra"
)

var infoVerbose bool

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Print a CHD image's header fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVarP(&infoVerbose, "verbose", "v", false, "also list tracks and metadata entries")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(_ *cobra.Command, args []string) error {
	c, err := openImage(args[0], "")
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	h := c.Header()
	fmt.Printf("version:       %d\n", h.Version)
	fmt.Printf("logical bytes: %d\n", h.LogicalBytes)
	fmt.Printf("hunk bytes:    %d\n", h.HunkBytes)
	fmt.Printf("unit bytes:    %d\n", h.UnitBytes)
	fmt.Printf("hunk count:    %d\n", c.NumHunks())
	fmt.Printf("sha1:          %x\n", h.SHA1)
	if h.Version >= 4 {
		fmt.Printf("raw sha1:      %x\n", h.RawSHA1)
	}
	if h.Version < 5 {
		fmt.Printf("md5:           %x\n", h.MD5)
	}
	if h.HasParent() {
		if h.Version == 5 {
			fmt.Printf("parent sha1:   %x\n", h.ParentSHA1)
		} else {
			fmt.Printf("parent md5:    %x\n", h.ParentMD5)
		}
	}
	if h.Version == 5 {
		fmt.Print("compressors:   ")
		first := true
		for _, comp := range h.Compressors {
			if comp == chd.CodecNone {
				continue
			}
			if !first {
				fmt.Print(", ")
			}
			fmt.Print(fourCCString(comp))
			first = false
		}
		fmt.Println()
	}

	if !infoVerbose {
		return nil
	}

	tracks := c.Tracks()
	if len(tracks) > 0 {
		fmt.Println("\ntracks:")
		for _, t := range tracks {
			fmt.Printf("  #%d type=%s subtype=%s frames=%d pregap=%d\n",
				t.Number, t.Type, t.SubType, t.Frames, t.Pregap)
		}
	}

	entries := c.MetadataIter()
	if len(entries) > 0 {
		fmt.Println("\nmetadata:")
		for _, e := range entries {
			fmt.Printf("  tag=%s index=%d bytes=%d\n", fourCCString(e.Tag), e.Index, len(e.Data))
		}
	}

	return nil
}
