package remote

import (
	"context"
	"io"
	"sync"

	"github.com/odvcencio/mango/pkg/object"
)

// Source yields work items one at a time. Next returns io.EOF at a clean
// end of stream; any other error is an error end.
type Source[T any] interface {
	Next(ctx context.Context) (T, error)
}

// IncomingObject is one object as produced by the wire layer. Body yields
// exactly Length bytes.
type IncomingObject struct {
	Type   object.ObjectType
	Length int64
	Body   io.Reader
}

type (
	ObjectSource    = Source[*IncomingObject]
	RefUpdateSource = Source[RefUpdate]
)

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context) (T, error)

func (f SourceFunc[T]) Next(ctx context.Context) (T, error) { return f(ctx) }

// SliceSource yields items in order, then io.EOF.
func SliceSource[T any](items ...T) Source[T] {
	return &sliceSource[T]{items: items}
}

type sliceSource[T any] struct {
	mu    sync.Mutex
	items []T
}

func (s *sliceSource[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return zero, io.EOF
	}
	v := s.items[0]
	s.items = s.items[1:]
	return v, nil
}

// ObjectsFrom turns whole objects into an object source.
func ObjectsFrom(objs ...*object.Object) ObjectSource {
	items := make([]*IncomingObject, len(objs))
	for i, o := range objs {
		items[i] = &IncomingObject{Type: o.Type, Length: o.Length, Body: o.Reader()}
	}
	return SliceSource(items...)
}

// Stream is a Source fed by a producer goroutine. The producer calls Send
// for each item and Close exactly once; Send must not be called after
// Close.
type Stream[T any] struct {
	ch   chan T
	once sync.Once
	err  error
}

// NewStream returns a stream buffering up to buffer items.
func NewStream[T any](buffer int) *Stream[T] {
	return &Stream[T]{ch: make(chan T, buffer)}
}

// Send delivers v, blocking until the consumer has room or ctx is done.
func (s *Stream[T]) Send(ctx context.Context, v T) error {
	select {
	case s.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. A nil err is a clean end. Items already sent are
// still delivered before the end is reported.
func (s *Stream[T]) Close(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.ch)
	})
}

func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-s.ch:
		if !ok {
			if s.err != nil {
				return zero, s.err
			}
			return zero, io.EOF
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// ctxReader fails reads once ctx is done, so a stalled body cannot outlive
// a cancelled update.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
