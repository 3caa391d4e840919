package server

import (
	"bufio"
	"errors"
	"io"
	"net"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/decoder"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/wire"
)

// handleConn serves one device connection until the peer closes it, a
// header is malformed, or the server shuts down. Messages on a connection
// are processed strictly in order.
func (s *Server) handleConn(conn net.Conn) {
	defer s.releaseConn(conn)

	remote := conn.RemoteAddr().String()
	r := bufio.NewReaderSize(conn, wire.MaxHeaderSize)

	for !s.done.Load() {
		header, payload, err := wire.ReadFrame(r)
		if err != nil {
			s.logConnEnd(remote, err)
			return
		}

		if s.done.Load() {
			return
		}

		reading, err := s.decoder.DecryptAndDecode(header.DeviceID, payload)
		if err != nil {
			s.dropped.Add(1)
			s.logger.Warn("dropping message",
				"device_id", header.DeviceID,
				"stage", decoder.Stage(err),
				"error", err,
			)
			continue
		}

		s.ProcessReading(reading)
	}
}

func (s *Server) logConnEnd(remote string, err error) {
	switch {
	case isExpectedClose(err):
		s.logger.Debug("connection closed", "remote", remote)
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.logger.Debug("connection closed mid-message", "remote", remote)
	case errors.Is(err, wire.ErrFraming):
		s.logger.Warn("closing connection", "remote", remote, "error", err)
	default:
		s.logger.Error("connection read failed", "remote", remote, "error", err)
	}
}
