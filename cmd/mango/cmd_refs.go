package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newRefsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refs",
		Short: "List references held by the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			it, err := s.repo.Refs(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for ref, ok := it.Next(); ok; ref, ok = it.Next() {
				fmt.Fprintf(out, "%s %s\n", ref.Value, ref.Name)
			}
			syms, err := s.repo.Symrefs(ctx)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(syms))
			for name := range syms {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "@%s %s\n", syms[name], name)
			}
			return nil
		},
	}
}

func newSnapshotsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List the snapshot chain in ledger order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			snaps, err := s.repo.Snapshots(ctx)
			if err != nil {
				return err
			}
			for _, loc := range snaps {
				fmt.Fprintln(cmd.OutOrStdout(), loc)
			}
			return nil
		},
	}
}
