package remote

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/fxamacker/cbor/v2"

	"github.com/odvcencio/mango/pkg/object"
)

// Push stream channel identifiers.
const (
	ChannelObject   byte = 0x01
	ChannelRef      byte = 0x02
	ChannelProgress byte = 0x03
	ChannelError    byte = 0x04
)

// maxFrameSize bounds a single frame read from a push stream.
const maxFrameSize = 64 << 20

// refFrame is the payload of a ChannelRef frame. Empty Old/New mean null.
type refFrame struct {
	_    struct{} `cbor:",toarray"`
	Name string
	Old  string
	New  string
}

// FrameWriter writes a push stream: length-prefixed frames that interleave
// objects and ref updates.
// Frame format: [4 bytes big-endian length][1 byte channel][payload]
type FrameWriter struct {
	w io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

func (fw *FrameWriter) writeFrame(channel byte, data []byte) error {
	if len(data)+1 > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(data)+1)
	}
	frameLen := uint32(1 + len(data)) // channel + payload
	if err := binary.Write(fw.w, binary.BigEndian, frameLen); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := fw.w.Write([]byte{channel}); err != nil {
		return fmt.Errorf("write channel: %w", err)
	}
	if len(data) > 0 {
		if _, err := fw.w.Write(data); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}

// WriteObject writes o as an object record frame.
func (fw *FrameWriter) WriteObject(o *object.Object) error {
	record, err := object.EncodeRecord(o)
	if err != nil {
		return err
	}
	return fw.writeFrame(ChannelObject, record)
}

// WriteRef writes a ref update frame.
func (fw *FrameWriter) WriteRef(u RefUpdate) error {
	payload, err := cbor.Marshal(refFrame{Name: u.Name, Old: hashValue(u.Old), New: hashValue(u.New)})
	if err != nil {
		return fmt.Errorf("encode ref frame: %w", err)
	}
	return fw.writeFrame(ChannelRef, payload)
}

func (fw *FrameWriter) WriteProgress(msg string) error {
	return fw.writeFrame(ChannelProgress, []byte(msg))
}

// WriteError ends the stream with a producer error.
func (fw *FrameWriter) WriteError(msg string) error {
	return fw.writeFrame(ChannelError, []byte(msg))
}

// FrameReader reads length-prefixed push stream frames.
type FrameReader struct {
	r io.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads one frame, returning channel and payload.
// Returns io.EOF when no more frames are available.
func (fr *FrameReader) ReadFrame() (byte, []byte, error) {
	var frameLen uint32
	if err := binary.Read(fr.r, binary.BigEndian, &frameLen); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, nil, fmt.Errorf("read frame length: %w", err)
		}
		return 0, nil, err
	}
	if frameLen < 1 {
		return 0, nil, fmt.Errorf("frame too short: %d", frameLen)
	}
	if frameLen > maxFrameSize {
		return 0, nil, fmt.Errorf("frame too large: %d bytes", frameLen)
	}

	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(fr.r, frame); err != nil {
		return 0, nil, fmt.Errorf("read frame: %w", err)
	}
	return frame[0], frame[1:], nil
}

// Demux splits a push stream into its object and ref-update sources. A
// goroutine reads r until a clean end, an error frame, a read failure or
// ctx is done; the caller cancels ctx to release it early.
func Demux(ctx context.Context, r io.Reader, logger *slog.Logger) (ObjectSource, RefUpdateSource) {
	if logger == nil {
		logger = slog.Default()
	}
	objects := NewStream[*IncomingObject](16)
	refs := NewStream[RefUpdate](16)
	go func() {
		err := demux(ctx, NewFrameReader(r), objects, refs, logger)
		objects.Close(err)
		refs.Close(err)
	}()
	return objects, refs
}

func demux(ctx context.Context, fr *FrameReader, objects *Stream[*IncomingObject], refs *Stream[RefUpdate], logger *slog.Logger) error {
	for {
		channel, payload, err := fr.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch channel {
		case ChannelObject:
			obj, err := object.DecodeRecord(payload)
			if err != nil {
				return fmt.Errorf("object frame: %w", err)
			}
			item := &IncomingObject{Type: obj.Type, Length: obj.Length, Body: bytes.NewReader(obj.Payload)}
			if err := objects.Send(ctx, item); err != nil {
				return err
			}
		case ChannelRef:
			var f refFrame
			if err := cbor.Unmarshal(payload, &f); err != nil {
				return fmt.Errorf("ref frame: %w", err)
			}
			if err := refs.Send(ctx, RefUpdate{Name: f.Name, Old: hashPtr(f.Old), New: hashPtr(f.New)}); err != nil {
				return err
			}
		case ChannelProgress:
			logger.Info("producer progress", "message", string(payload))
		case ChannelError:
			return fmt.Errorf("producer error: %s", string(payload))
		default:
			return fmt.Errorf("unknown frame channel 0x%02x", channel)
		}
	}
}

func hashPtr(v string) *object.Hash {
	if v == "" {
		return nil
	}
	h := object.Hash(v)
	return &h
}
