// Package monitor generalizes stages/websocket_sink.go into a live tap
// that can sit on the output of any xstream.Stream, not just a fixed
// core.Event channel. WYE and NJOIN consumers are pull-based by design,
// but operators still want a push view of what a running merge is
// producing — a dashboard, a debug console — without becoming the
// stream's actual consumer. Sink drains its own pull loop and mirrors
// each chunk out over a WebSocket connection, the way WebSocketSink
// mirrored core.Event values, generalized with a type parameter and a
// pluggable encoder in place of protocol.EventToMessage.
package monitor

import (
	"context"
	"encoding/json"

	"github.com/corewye/pipeline/cause"
	"github.com/corewye/pipeline/telemetry"
	"github.com/corewye/pipeline/xstream"
	"github.com/gorilla/websocket"
)

// Encode turns one stream element into bytes for a text WebSocket frame.
// A Sink built by NewSink uses json.Marshal.
type Encode[T any] func(T) ([]byte, error)

// Sink mirrors a Stream[T] out over a WebSocket connection as it's pulled.
// It never becomes backpressure for the real consumer: Run drives its own
// independent pull loop against the Stream it's given, so a Sink is meant
// to be handed a tee of the real output, not the real output itself.
type Sink[T any] struct {
	conn   *websocket.Conn
	logger telemetry.Logger
	encode Encode[T]
}

// NewSink returns a Sink that writes JSON text frames to conn.
func NewSink[T any](conn *websocket.Conn, logger telemetry.Logger) *Sink[T] {
	return &Sink[T]{
		conn:   conn,
		logger: logger.WithModule("monitor"),
		encode: func(v T) ([]byte, error) { return json.Marshal(v) },
	}
}

// WithEncoder overrides the default JSON encoding.
func (s *Sink[T]) WithEncoder(enc Encode[T]) *Sink[T] {
	s.encode = enc
	return s
}

// Run pulls s from the stream until it halts or ctx is cancelled,
// forwarding every emitted element as a text frame. A write failure is
// logged and demotes the sink to a pure drain for the remainder of the
// stream — a broken connection never fails the stream it's tapping.
func (s *Sink[T]) Run(ctx context.Context, stream xstream.Stream[T]) cause.Cause {
	draining := false
	for {
		select {
		case <-ctx.Done():
			step := stream.Step()
			_ = step.Next(cause.OfKill()).Step()
			return cause.OfKill()
		default:
		}

		step := stream.Step()
		switch step.Kind() {
		case xstream.KindHalt:
			return step.Cause()
		case xstream.KindEmit:
			if !draining {
				for _, item := range step.Chunk() {
					data, err := s.encode(item)
					if err != nil {
						s.logger.Error("failed to encode item", telemetry.Err(err))
						continue
					}
					if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						s.logger.Error("failed to write to websocket, draining remainder", telemetry.Err(err))
						draining = true
						break
					}
				}
			}
			stream = step.Next(cause.OfEnd())
		}
	}
}
