// Package channel connects a UI client stream to the request router using
// one JSON message per line in each direction.
package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/pario-ai/larder/pkg/models"
)

// MsgMalformed is sent for lines that are not a valid message.
const MsgMalformed = "Malformed message."

const maxLineSize = 1024 * 1024

// Handler answers typed requests. A nil response means no reply.
type Handler interface {
	Handle(ctx context.Context, req models.Request) *models.Response
}

// Dispatch converts msg to a typed request, runs it through h and returns
// the wire reply with msg's id echoed, or nil when nothing should be sent.
func Dispatch(ctx context.Context, h Handler, msg models.Message) *models.Reply {
	req, ok := msg.Request()
	if !ok {
		return nil
	}
	resp := h.Handle(ctx, req)
	if resp == nil {
		return nil
	}
	reply := models.NewReply(*resp)
	reply.ID = msg.ID
	return &reply
}

// Server reads messages from a stream and writes replies to another.
// Messages are handled concurrently, so replies may arrive out of order.
type Server struct {
	handler Handler
	log     zerolog.Logger
	mu      sync.Mutex
}

// New creates a Server.
func New(h Handler, logger zerolog.Logger) *Server {
	return &Server{
		handler: h,
		log:     logger.With().Str("component", "channel").Logger(),
	}
}

// Run reads messages from r line by line and writes replies to w. It returns
// when r is exhausted or ctx is cancelled, then waits for in-flight messages
// to be answered. Lines longer than the size limit are discarded and answered
// as malformed.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan line)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readLines(ctx, bufio.NewReaderSize(r, 64*1024), lines)
	}()

	var wg conc.WaitGroup
	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if l.tooLong {
				s.log.Warn().Int("limit", maxLineSize).Msg("message exceeds size limit")
				s.write(w, models.Reply{Error: MsgMalformed})
				continue
			}
			wg.Go(func() {
				s.handleLine(ctx, w, l.data)
			})
		}
	}
}

type line struct {
	data    []byte
	tooLong bool
}

// readLines sends every non-blank line of br on out and closes out at EOF.
func readLines(ctx context.Context, br *bufio.Reader, out chan<- line) error {
	defer close(out)
	for {
		l, err := readLine(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !l.tooLong && len(bytes.TrimSpace(l.data)) == 0 {
			continue
		}
		select {
		case out <- l:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readLine reads up to the next newline. Bytes past maxLineSize are dropped
// and the line is flagged tooLong. A final line without a newline is
// returned before io.EOF.
func readLine(br *bufio.Reader) (line, error) {
	var l line
	for {
		chunk, err := br.ReadSlice('\n')
		if !l.tooLong {
			if len(l.data)+len(chunk) > maxLineSize+1 {
				l.tooLong = true
				l.data = nil
			} else {
				l.data = append(l.data, chunk...)
			}
		}
		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF && (len(l.data) > 0 || l.tooLong):
			l.data = bytes.TrimRight(l.data, "\r\n")
			return l, nil
		case err != nil:
			return line{}, err
		}
		l.data = bytes.TrimRight(l.data, "\r\n")
		return l, nil
	}
}

func (s *Server) handleLine(ctx context.Context, w io.Writer, line []byte) {
	log := s.log.With().Str("correlation_id", uuid.NewString()).Logger()

	var msg models.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		log.Warn().Err(err).Msg("malformed message")
		s.write(w, models.Reply{Error: MsgMalformed})
		return
	}
	log.Debug().Str("type", msg.Type).Str("recipe_id", string(msg.RecipeID)).Msg("message received")

	reply := Dispatch(log.WithContext(ctx), s.handler, msg)
	if reply == nil {
		log.Debug().Str("type", msg.Type).Msg("no reply")
		return
	}
	s.write(w, *reply)
}

func (s *Server) write(w io.Writer, reply models.Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal reply")
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("write reply")
	}
}
