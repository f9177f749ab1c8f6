package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/mango/pkg/object"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)

	if err := fw.WriteObject(object.New(object.TypeBlob, []byte("hello"))); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	if err := fw.WriteProgress("50%"); err != nil {
		t.Fatalf("WriteProgress: %v", err)
	}
	if err := fw.WriteRef(RefUpdate{Name: "refs/heads/master", New: hashPtr("abc123")}); err != nil {
		t.Fatalf("WriteRef: %v", err)
	}

	fr := NewFrameReader(&buf)
	var channels []byte
	for {
		channel, _, err := fr.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		channels = append(channels, channel)
	}
	if !bytes.Equal(channels, []byte{ChannelObject, ChannelProgress, ChannelRef}) {
		t.Fatalf("channels = %v", channels)
	}
}

func TestFrameReaderRejectsBadFrames(t *testing.T) {
	cases := map[string][]byte{
		"zero length":  {0, 0, 0, 0},
		"oversized":    {0xff, 0xff, 0xff, 0xff, ChannelObject},
		"truncated":    {0, 0, 0, 5, ChannelObject, 'a'},
		"short length": {0, 0},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := NewFrameReader(bytes.NewReader(data)).ReadFrame()
			if err == nil || err == io.EOF {
				t.Fatalf("expected framing error, got %v", err)
			}
		})
	}
}

func TestDemuxSplitsStreams(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.WriteRef(RefUpdate{Name: "refs/heads/a", New: hashPtr("c1")}))
	require.NoError(t, fw.WriteObject(object.New(object.TypeBlob, []byte("one"))))
	require.NoError(t, fw.WriteObject(object.New(object.TypeTree, []byte("two"))))
	require.NoError(t, fw.WriteRef(RefUpdate{Name: "refs/heads/b", Old: hashPtr("c0")}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	objects, refs := Demux(ctx, &buf, discardLogger())

	// Drain concurrently; the demuxer interleaves sends to both streams.
	type objResult struct {
		types []object.ObjectType
		err   error
	}
	done := make(chan objResult, 1)
	go func() {
		var res objResult
		for {
			item, err := objects.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					res.err = err
				}
				done <- res
				return
			}
			res.types = append(res.types, item.Type)
		}
	}()

	var updates []RefUpdate
	for {
		u, err := refs.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		updates = append(updates, u)
	}
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, []object.ObjectType{object.TypeBlob, object.TypeTree}, res.types)

	require.Len(t, updates, 2)
	require.Equal(t, "refs/heads/a", updates[0].Name)
	require.Nil(t, updates[0].Old)
	require.Equal(t, object.Hash("c1"), *updates[0].New)
	require.Equal(t, object.Hash("c0"), *updates[1].Old)
	require.Nil(t, updates[1].New)
}

func TestDemuxProducerErrorEndsBothStreams(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.WriteError("pack generation failed"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	objects, refs := Demux(ctx, &buf, discardLogger())

	_, err := objects.Next(ctx)
	require.ErrorContains(t, err, "pack generation failed")
	_, err = refs.Next(ctx)
	require.ErrorContains(t, err, "pack generation failed")
}
