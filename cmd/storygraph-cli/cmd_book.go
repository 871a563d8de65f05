package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/persistorai/storygraph/internal/models"
)

// positiveArgs parses every positional argument as a positive integer.
func positiveArgs(names ...string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(len(names))(cmd, args); err != nil {
			return err
		}

		for i, a := range args {
			if n, err := strconv.Atoi(a); err != nil || n <= 0 {
				return fmt.Errorf("%s must be a positive integer, got %q", names[i], a)
			}
		}

		return nil
	}
}

// ints converts arguments already checked by positiveArgs.
func ints(args []string) []int {
	out := make([]int, len(args))
	for i, a := range args {
		out[i], _ = strconv.Atoi(a)
	}

	return out
}

func newWarmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm <bookId>",
		Short: "Build every chapter of a book and write its summary",
		Args:  positiveArgs("bookId"),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID := ints(args)[0]

			sum, err := pipeline.Graph.EnsureBook(cmd.Context(), bookID)
			if errors.Is(err, models.ErrAborted) {
				return fmt.Errorf("warm book %d: interrupted", bookID)
			}
			if err != nil {
				return fmt.Errorf("warm book %d: %w", bookID, err)
			}

			output(sum)

			return nil
		},
	}
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <bookId>",
		Short: "Show the cached chapters of a book",
		Args:  positiveArgs("bookId"),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := pipeline.Graph.BookSummary(cmd.Context(), ints(args)[0])
			if err != nil {
				return fmt.Errorf("summary: %w", err)
			}

			output(sum)

			return nil
		},
	}
}
