package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var (
	getOffset int64
	getSize   int
	getOut    string
)

var getCmd = &cobra.Command{
	Use:   "get <short-path>",
	Short: "Read bytes from a logical file at an offset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		h, err := s.StorageFor(args[0])
		if err != nil {
			return err
		}
		data, err := h.Read(cmd.Context(), getOffset, getSize)
		if err != nil {
			return err
		}

		if getOut != "" {
			return os.WriteFile(getOut, data, 0o644)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	getCmd.Flags().Int64Var(&getOffset, "offset", 0, "byte offset to read from")
	getCmd.Flags().IntVar(&getSize, "size", 0, "number of bytes to read (required)")
	getCmd.Flags().StringVar(&getOut, "out", "", "write bytes to this file instead of stdout")
	getCmd.MarkFlagRequired("size")
	rootCmd.AddCommand(getCmd)
}
