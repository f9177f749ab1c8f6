package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/odvcencio/mango/pkg/object"
	"github.com/odvcencio/mango/pkg/remote"
)

func newPushCmd(opts *globalOptions) *cobra.Command {
	var (
		refSpecs []string
		kind     string
	)

	cmd := &cobra.Command{
		Use:   "push [file]...",
		Short: "Store files as objects and apply ref updates",
		Long: `Store each file as one object and apply each --ref update.

A ref update is name:old:new. An empty old means the ref must not exist;
an empty new deletes it. With no files no snapshot is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			objType, err := parseKind(kind)
			if err != nil {
				return err
			}
			updates := make([]remote.RefUpdate, 0, len(refSpecs))
			for _, spec := range refSpecs {
				u, err := parseRefSpec(spec)
				if err != nil {
					return err
				}
				updates = append(updates, u)
			}
			if len(args) == 0 && len(updates) == 0 {
				return fmt.Errorf("nothing to push: give files and/or --ref updates")
			}

			ctx, cancel := commandContext(cmd, opts)
			defer cancel()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			var (
				objects    remote.ObjectSource
				refs       remote.RefUpdateSource
				objCounter = &counter[*remote.IncomingObject]{}
				refCounter = &counter[remote.RefUpdate]{}
			)
			if len(args) > 0 {
				objCounter.src = fileSource(objType, args)
				objects = objCounter
			}
			if len(updates) > 0 {
				refCounter.src = remote.SliceSource(updates...)
				refs = refCounter
			}

			if err := s.repo.Update(ctx, refs, objects); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d objects stored, %d ref updates applied\n",
				objCounter.n.Load(), refCounter.n.Load())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&refSpecs, "ref", nil, "ref update name:old:new (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", string(object.TypeBlob), "object kind for files (blob, tree, commit, tag)")
	return cmd
}

func newReceiveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "receive [stream-file]",
		Short: "Apply a framed push stream read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open push stream: %w", err)
				}
				defer f.Close()
				in = f
			}

			ctx, cancel := commandContext(cmd, opts)
			defer cancel()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			objects, refs := remote.Demux(ctx, in, s.logger)
			return s.repo.Update(ctx, refs, objects)
		},
	}
}

// parseRefSpec parses name:old:new. The new side may itself contain ':'
// (symbolic values such as "ref: refs/heads/main").
func parseRefSpec(spec string) (remote.RefUpdate, error) {
	name, rest, ok := strings.Cut(spec, ":")
	if !ok {
		return remote.RefUpdate{}, fmt.Errorf("invalid ref update %q: want name:old:new", spec)
	}
	old, next, ok := strings.Cut(rest, ":")
	if !ok {
		return remote.RefUpdate{}, fmt.Errorf("invalid ref update %q: want name:old:new", spec)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return remote.RefUpdate{}, fmt.Errorf("invalid ref update %q: empty name", spec)
	}
	return remote.RefUpdate{Name: name, Old: optionalHash(old), New: optionalHash(next)}, nil
}

func optionalHash(v string) *object.Hash {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	h := object.Hash(v)
	return &h
}

// fileSource reads each file only when the object track asks for it.
func fileSource(objType object.ObjectType, paths []string) remote.ObjectSource {
	next := 0
	return remote.SourceFunc[*remote.IncomingObject](func(ctx context.Context) (*remote.IncomingObject, error) {
		if next >= len(paths) {
			return nil, io.EOF
		}
		path := paths[next]
		next++
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		obj := object.New(objType, data)
		return &remote.IncomingObject{Type: obj.Type, Length: obj.Length, Body: obj.Reader()}, nil
	})
}

// counter counts the items a source yields.
type counter[T any] struct {
	src remote.Source[T]
	n   atomic.Int64
}

func (c *counter[T]) Next(ctx context.Context) (T, error) {
	v, err := c.src.Next(ctx)
	if err == nil {
		c.n.Add(1)
	}
	return v, err
}
