package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/alucardeht/ytscribe-mcp/internal/tools"
	"github.com/alucardeht/ytscribe-mcp/pkg/protocol"
)

const maxLineSize = 1024 * 1024

type Server struct {
	handler *Handler
}

func NewServer(registry *tools.Registry, opts ...HandlerOption) *Server {
	return &Server{
		handler: NewHandler(registry, opts...),
	}
}

func (s *Server) HandleMessage(ctx context.Context, msg protocol.Message) *protocol.Response {
	return s.handler.Handle(ctx, msg)
}

type inputLine struct {
	data    []byte
	tooLong bool
	err     error
}

// ProcessStream serves newline-delimited JSON-RPC from reader until it ends or
// ctx is cancelled. Requests are handled one at a time in arrival order and
// every response is flushed before the next line is read. Lines are read on a
// separate goroutine so cancellation returns even while a read is blocked.
func (s *Server) ProcessStream(ctx context.Context, reader io.Reader, writer io.Writer) error {
	out := protocol.NewFlushWriter(writer)

	if err := ctx.Err(); err != nil {
		return err
	}

	lines := make(chan inputLine)
	go readLines(ctx, reader, lines)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var in inputLine
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in = <-lines:
		}

		if in.err != nil {
			if errors.Is(in.err, io.EOF) {
				return nil
			}
			log.Warn("input stream failed", "error", in.err)
			return in.err
		}

		if in.tooLong {
			log.Warn("rejecting oversized message", "limit", maxLineSize)
			if err := writeMessage(out, protocol.NewError(nil, jsonrpc2.CodeParseError, "Parse error")); err != nil {
				return err
			}
			continue
		}

		line := bytes.TrimSpace(in.data)
		if len(line) == 0 {
			continue
		}

		msg, err := protocol.Decode(line)
		if err != nil {
			log.Warn("rejecting malformed message", "error", err)
			code := int64(jsonrpc2.CodeParseError)
			text := "Parse error"
			if json.Valid(line) {
				code = jsonrpc2.CodeInvalidRequest
				text = "Invalid request"
			}
			if err := writeMessage(out, protocol.NewError(nil, code, text)); err != nil {
				return err
			}
			continue
		}

		resp := s.HandleMessage(ctx, msg)
		if resp == nil {
			continue
		}
		if err := writeMessage(out, resp); err != nil {
			return err
		}
	}
}

// readLines sends every line of r to lines and finishes with the read error
// (io.EOF at the end of input). A line longer than maxLineSize is skipped up
// to its newline and reported with tooLong set. It stops early once ctx is
// done and nobody is receiving.
func readLines(ctx context.Context, r io.Reader, lines chan<- inputLine) {
	reader := bufio.NewReaderSize(r, 64*1024)

	send := func(in inputLine) bool {
		select {
		case lines <- in:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		var (
			buf     []byte
			tooLong bool
		)
		for {
			chunk, err := reader.ReadSlice('\n')
			if !tooLong {
				if len(buf)+len(chunk) > maxLineSize {
					tooLong = true
					buf = nil
				} else {
					buf = append(buf, chunk...)
				}
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			if err != nil {
				if tooLong && !send(inputLine{tooLong: true}) {
					return
				}
				if !tooLong && len(bytes.TrimSpace(buf)) > 0 && !send(inputLine{data: buf}) {
					return
				}
				send(inputLine{err: err})
				return
			}
			break
		}

		if !send(inputLine{data: buf, tooLong: tooLong}) {
			return
		}
	}
}

func writeMessage(w io.Writer, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func (s *Server) Handler() *Handler {
	return s.handler
}
