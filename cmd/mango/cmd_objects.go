package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/mango/pkg/object"
)

func newHasCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "has <id>",
		Short: "Report whether an object is indexed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseObjectID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			has, err := s.repo.HasObject(ctx, id)
			if err != nil {
				return err
			}
			if !has {
				return fmt.Errorf("object %s not found", id)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newCatObjectCmd(opts *globalOptions) *cobra.Command {
	var showType, showSize bool

	cmd := &cobra.Command{
		Use:   "cat-object <id>",
		Short: "Print an object's payload, kind or length",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if showType && showSize {
				return fmt.Errorf("-t and -s are mutually exclusive")
			}
			id, err := parseObjectID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, opts)
			defer cancel()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			obj, err := s.repo.GetObject(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case showType:
				fmt.Fprintln(out, obj.Type)
			case showSize:
				fmt.Fprintln(out, obj.Length)
			default:
				_, err = out.Write(obj.Payload)
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&showType, "type", "t", false, "print the object kind")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "print the payload length")
	return cmd
}

func newHashObjectCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "hash-object <file>...",
		Short: "Compute object identifiers without storing anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			objType, err := parseKind(kind)
			if err != nil {
				return err
			}
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %q: %w", path, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), object.New(objType, data).Hash())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(object.TypeBlob), "object kind (blob, tree, commit, tag)")
	return cmd
}

func parseObjectID(raw string) (object.Hash, error) {
	id := object.Hash(strings.TrimSpace(raw))
	if err := object.ValidateHash(id); err != nil {
		return "", fmt.Errorf("invalid object id %q: %w", raw, err)
	}
	return id, nil
}

func parseKind(raw string) (object.ObjectType, error) {
	switch t := object.ObjectType(strings.TrimSpace(raw)); t {
	case object.TypeBlob, object.TypeTree, object.TypeCommit, object.TypeTag:
		return t, nil
	default:
		return "", fmt.Errorf("unknown object kind %q", raw)
	}
}
