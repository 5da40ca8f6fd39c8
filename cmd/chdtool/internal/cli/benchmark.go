package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark <file>",
	Short: "Decompress every hunk and report throughput",
	Args:  cobra.ExactArgs(1),
	RunE:  runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)
}

func runBenchmark(_ *cobra.Command, args []string) error {
	c, err := openImage(args[0], "")
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	total := c.NumHunks()
	var bytesRead int64

	start := time.Now()
	for i := range total {
		data, err := c.ReadHunk(i)
		if err != nil {
			return fmt.Errorf("hunk %d: %w", i, err)
		}
		bytesRead += int64(len(data))
	}
	elapsed := time.Since(start)

	mb := float64(bytesRead) / (1024 * 1024)
	fmt.Printf("hunks:     %d\n", total)
	fmt.Printf("bytes:     %d\n", bytesRead)
	fmt.Printf("elapsed:   %s\n", elapsed)
	if elapsed > 0 {
		fmt.Printf("throughput: %.2f MB/s\n", mb/elapsed.Seconds())
	}
	return nil
}
