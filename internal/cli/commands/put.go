package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	putOffset int64
	putData   string
	putIn     string
)

var putCmd = &cobra.Command{
	Use:   "put <short-path>",
	Short: "Write bytes into a logical file at an offset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := putInput()
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		h, err := s.StorageFor(args[0])
		if err != nil {
			return err
		}
		if err := h.Write(cmd.Context(), putOffset, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s at offset %d\n",
			len(data), h.ShortPath(), putOffset)
		return nil
	},
}

func putInput() ([]byte, error) {
	switch {
	case putData != "" && putIn != "":
		return nil, fmt.Errorf("--data and --in are mutually exclusive")
	case putData != "":
		return []byte(putData), nil
	case putIn == "-":
		return io.ReadAll(os.Stdin)
	case putIn != "":
		return os.ReadFile(putIn)
	default:
		return nil, fmt.Errorf("one of --data or --in is required")
	}
}

func init() {
	putCmd.Flags().Int64Var(&putOffset, "offset", 0, "byte offset to write at")
	putCmd.Flags().StringVar(&putData, "data", "", "literal bytes to write")
	putCmd.Flags().StringVar(&putIn, "in", "", "file to read bytes from (- for stdin)")
	rootCmd.AddCommand(putCmd)
}
