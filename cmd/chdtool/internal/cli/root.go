// Package cli implements the chdtool command-line surface.
package cli

import (
	"fmt"

	"github.com/nmoshiri/go-chd/chd"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// fs is the filesystem chdtool opens images through. The chd package itself
// never touches a real filesystem; it only ever sees the io.ReaderAt that fs
// hands back, which is what keeps the host byte-stream abstraction out of
// the core.
var fs = afero.NewOsFs()

var rootCmd = &cobra.Command{
	Use:           "chdtool",
	Short:         "Inspect and extract MAME CHD disc images",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the chdtool root command.
func Execute() error {
	return rootCmd.Execute()
}

// openImage opens the CHD at path, chaining in a parent image opened from
// parentPath first when one is given. The returned CHD owns both underlying
// files: closing it closes the child and then the parent. By this point the
// parent has already been validated against the child's declared parent hash.
func openImage(path, parentPath string) (*chd.CHD, error) {
	var parent *chd.CHD
	if parentPath != "" {
		pf, err := fs.Open(parentPath)
		if err != nil {
			return nil, fmt.Errorf("open parent %s: %w", parentPath, err)
		}
		parent, err = chd.OpenSource(pf, nil)
		if err != nil {
			_ = pf.Close()
			return nil, fmt.Errorf("open parent %s: %w", parentPath, err)
		}
	}

	f, err := fs.Open(path)
	if err != nil {
		if parent != nil {
			_ = parent.Close()
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	c, err := chd.OpenSource(f, parent)
	if err != nil {
		_ = f.Close()
		if parent != nil {
			_ = parent.Close()
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return c, nil
}
