package commands

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"fdstore/internal/util"
)

var (
	benchFiles   int
	benchOps     int
	benchOpSize  int
	benchSpread  int64
	benchWorkers int
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Exercise the store with a mixed read/write workload",
	Long:  "bench issues random positional writes and read-backs across many\nlogical files. With more files than the descriptor budget it measures\neviction churn rather than raw disk throughput.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		ctx := cmd.Context()
		start := time.Now()

		var wg sync.WaitGroup
		errCh := make(chan error, benchWorkers)
		opsPerWorker := benchOps / benchWorkers
		if opsPerWorker == 0 {
			opsPerWorker = 1
		}

		for i := 0; i < benchWorkers; i++ {
			wg.Add(1)
			go func(seed int64) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(seed))
				payload := make([]byte, benchOpSize)
				rng.Read(payload)

				for n := 0; n < opsPerWorker; n++ {
					short := fmt.Sprintf("bench/f%04d", rng.Intn(benchFiles))
					h, err := s.StorageFor(short)
					if err != nil {
						errCh <- err
						return
					}
					offset := rng.Int63n(benchSpread)
					if err := h.Write(ctx, offset, payload); err != nil {
						errCh <- err
						return
					}
					if _, err := h.Read(ctx, offset, benchOpSize); err != nil {
						errCh <- err
						return
					}
				}
			}(int64(i) + 1)
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			if err != nil {
				return err
			}
		}

		// Let in-flight completions settle before sampling stats.
		pollErr := util.PollUntil(ctx, util.DefaultPollConfig(), func() bool {
			st := s.Stats()
			return st.QueuedOps == 0 && st.InFlightOps == 0
		})

		elapsed := time.Since(start)
		st := s.Stats()
		out := cmd.OutOrStdout()
		totalOps := opsPerWorker * benchWorkers * 2
		fmt.Fprintf(out, "completed %d ops over %d files in %s (%.0f ops/s)\n",
			totalOps, benchFiles, elapsed.Round(time.Millisecond),
			float64(totalOps)/elapsed.Seconds())
		fmt.Fprintf(out, "workers: %d total, %d open, %d active\n",
			st.Workers, st.OpenWorkers, st.ActiveWorkers)
		return pollErr
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchFiles, "files", 256, "number of logical files")
	benchCmd.Flags().IntVar(&benchOps, "ops", 4096, "total write+readback pairs")
	benchCmd.Flags().IntVar(&benchOpSize, "op-size", 512, "bytes per operation")
	benchCmd.Flags().Int64Var(&benchSpread, "spread", 1<<20, "max write offset per file")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 8, "concurrent submitters")
	rootCmd.AddCommand(benchCmd)
}
