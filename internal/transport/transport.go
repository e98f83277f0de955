// Package transport pumps a single telephony media WebSocket in both
// directions.
//
// One [Stream] serves one call leg: inbound text messages are deserialized
// through the leg's serializer and pushed into a frame sink, and outbound
// frames are drained from a queue, serialized, and written to the socket.
// Keepalive pongs bypass the outbound queue entirely: the read loop polls
// the serializer for a pending pong right after each inbound message and
// writes it on the spot, so a backlog of queued media can never delay the
// answer past the provider's keepalive deadline.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/kenpath-ai/voicebridge/internal/observe"
	"github.com/kenpath-ai/voicebridge/pkg/frames"
	"github.com/kenpath-ai/voicebridge/pkg/serializer"
)

// Compile-time assertion that Stream can serve as the session's outbound sink.
var _ frames.Sink = (*Stream)(nil)

// defaultOutboundBuffer is the outbound frame queue capacity. Sized for
// roughly a second of 20 ms media frames plus control traffic.
const defaultOutboundBuffer = 64

// Option is a functional option for configuring a Stream.
type Option func(*Stream)

// WithOutboundBuffer sets the outbound frame queue capacity.
func WithOutboundBuffer(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.outBuf = n
		}
	}
}

// WithMetrics attaches frame counters. The provider label distinguishes
// telephony dialects in the exported series.
func WithMetrics(m *observe.Metrics, provider string) Option {
	return func(s *Stream) {
		s.metrics = m
		s.provider = provider
	}
}

// Stream binds one WebSocket connection to one serializer and one frame
// sink. Create with [New], then call [Stream.Run] once; Push may be called
// from any goroutine while Run is active.
type Stream struct {
	conn     *websocket.Conn
	ser      serializer.Serializer
	sink     frames.Sink
	metrics  *observe.Metrics
	provider string
	outBuf   int
	out      chan frames.Frame

	// writeMu serialises socket writes between the outbound loop and the
	// read loop's inline pong replies.
	writeMu sync.Mutex
}

// New wraps conn with the given serializer and inbound sink.
func New(conn *websocket.Conn, ser serializer.Serializer, sink frames.Sink, opts ...Option) *Stream {
	s := &Stream{
		conn:   conn,
		ser:    ser,
		sink:   sink,
		outBuf: defaultOutboundBuffer,
	}
	for _, o := range opts {
		o(s)
	}
	s.out = make(chan frames.Frame, s.outBuf)
	return s
}

// Push queues an outbound frame for serialization. It blocks when the queue
// is full until the write loop drains it or ctx is done.
func (s *Stream) Push(ctx context.Context, frame frames.Frame) error {
	select {
	case s.out <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives both pump loops until the peer closes, ctx is cancelled, or a
// loop fails. The connection is closed before Run returns. A normal remote
// closure and context cancellation both return nil.
func (s *Stream) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.readLoop(egCtx) })
	eg.Go(func() error { return s.writeLoop(egCtx) })

	err := eg.Wait()
	s.conn.Close(websocket.StatusNormalClosure, "")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readLoop deserializes inbound messages into the sink and answers pings
// inline before touching the next message.
func (s *Stream) readLoop(ctx context.Context) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("transport: read: %w", err)
		}

		frame, err := s.ser.Deserialize(data)
		if err != nil {
			return fmt.Errorf("transport: deserialize: %w", err)
		}
		if frame != nil {
			s.recordIn(ctx, frame)
			if err := s.sink.Push(ctx, frame); err != nil {
				return fmt.Errorf("transport: sink push: %w", err)
			}
		}

		if pb, ok := s.ser.(serializer.PongBuffer); ok {
			if pong, ok := pb.PendingPong(); ok {
				if err := s.write(ctx, websocket.MessageText, pong); err != nil {
					return fmt.Errorf("transport: write pong: %w", err)
				}
				if s.metrics != nil {
					s.metrics.RecordFrameOut(ctx, s.provider, "pong")
				}
			}
		}
	}
}

// writeLoop drains the outbound queue through the serializer. Frames the
// serializer maps to nothing are dropped silently; a serialization error
// tears the stream down.
func (s *Stream) writeLoop(ctx context.Context) error {
	msgType := websocket.MessageText
	if s.ser.Format() == serializer.FormatBinary {
		msgType = websocket.MessageBinary
	}

	for {
		var frame frames.Frame
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame = <-s.out:
		}

		data, err := s.ser.Serialize(frame)
		if err != nil {
			return fmt.Errorf("transport: serialize: %w", err)
		}
		if len(data) == 0 {
			continue
		}
		if err := s.write(ctx, msgType, data); err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
		s.recordOut(ctx, frame)
	}
}

func (s *Stream) write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(ctx, typ, data)
}

func (s *Stream) recordIn(ctx context.Context, frame frames.Frame) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordFrameIn(ctx, s.provider, frameEvent(frame))
	if d, ok := frame.(frames.DTMF); ok {
		s.metrics.RecordDTMF(ctx, string(d.Key))
	}
}

func (s *Stream) recordOut(ctx context.Context, frame frames.Frame) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordFrameOut(ctx, s.provider, frameEvent(frame))
}

// frameEvent maps a frame to its metrics event label.
func frameEvent(frame frames.Frame) string {
	switch frame.(type) {
	case frames.Audio:
		return "media"
	case frames.Interruption:
		return "clear"
	case frames.DTMF:
		return "dtmf"
	case frames.TransportMessage:
		return "transport_message"
	case frames.Start:
		return "start"
	case frames.Text:
		return "text"
	case frames.Speak:
		return "speak"
	default:
		return "unknown"
	}
}
