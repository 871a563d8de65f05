package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newChapterCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "chapter <bookId> <chapter>",
		Short: "Build or load a chapter cache",
		Args:  positiveArgs("bookId", "chapter"),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := ints(args)

			p, err := pipeline.Graph.EnsureChapter(cmd.Context(), n[0], n[1], force)
			if p == nil {
				return fmt.Errorf("chapter: %w", err)
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: chapter built but not cached: %v\n", err)
			}

			output(p)

			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Rediscover even when cached")
	return cmd
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <bookId> <chapter> <event>",
		Short: "Reconstruct the graph at one event",
		Args:  positiveArgs("bookId", "chapter", "event"),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := ints(args)

			state, ok := pipeline.Graph.GetEventState(cmd.Context(), n[0], n[1], n[2])
			if !ok {
				return fmt.Errorf("no graph for book %d chapter %d event %d", n[0], n[1], n[2])
			}

			output(state)

			return nil
		},
	}
}

func newInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <bookId> <chapter>",
		Short: "Drop a chapter cache and its book summary",
		Args:  positiveArgs("bookId", "chapter"),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := ints(args)

			if err := pipeline.Graph.Invalidate(cmd.Context(), n[0], n[1]); err != nil {
				return fmt.Errorf("invalidate: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "invalidated book %d chapter %d\n", n[0], n[1])

			return nil
		},
	}
}
