package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nettlesoup/tftpd/internal/protocol"
	"github.com/nettlesoup/tftpd/internal/protocol/messages"
	"github.com/nettlesoup/tftpd/internal/protocol/session"
	"github.com/nettlesoup/tftpd/internal/utils"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

type ServerUDP struct {
	root    string
	host    string
	port    uint16
	timeout time.Duration
	slots   chan struct{}

	mu    sync.Mutex
	laddr *net.UDPAddr
}

type ServerOpts struct {
	Root                   string
	Host                   string
	Port                   uint16
	Timeout                time.Duration
	MaxConcurrentTransfers uint32
}

func NewServerUDP(opts ServerOpts) *ServerUDP {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxConcurrentTransfers == 0 {
		opts.MaxConcurrentTransfers = 1
	}

	slots := make(chan struct{}, opts.MaxConcurrentTransfers)
	for i := uint32(0); i < opts.MaxConcurrentTransfers; i++ {
		slots <- struct{}{}
	}

	return &ServerUDP{
		root:    opts.Root,    // filesystem tree requests are confined to
		host:    opts.Host,    // server listening host
		port:    opts.Port,    // well-known listening port
		timeout: opts.Timeout, // per-datagram read/write timeout
		slots:   slots,        // semaphore for max concurrent transfers
	}
}

func (s *ServerUDP) slotAcquire() bool {
	select {
	case <-s.slots:
		return true
	default:
		return false
	}
}

func (s *ServerUDP) slotRelease() {
	s.slots <- struct{}{}
}

// Addr reports the bound listening address once Run has started, nil before.
func (s *ServerUDP) Addr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.laddr
}

// Run binds the well-known UDP port and dispatches one goroutine per
// incoming request. It returns once ctx is cancelled.
func (s *ServerUDP) Run(ctx context.Context) error {
	laddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port)))
	if err != nil {
		return fmt.Errorf("failed to resolve listen address: %w", err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.laddr = conn.LocalAddr().(*net.UDPAddr)
	s.mu.Unlock()

	go func() {
		// Shutdown the listening socket on context cancellation
		<-ctx.Done()
		conn.Close()
	}()

	log.Info().Str("addr", conn.LocalAddr().String()).Str("root", s.root).Msg("Listening for requests")

	// Any datagram larger than a full Data block is malformed; the extra
	// byte of headroom keeps oversize input detectable as TooLong.
	buf := make([]byte, messages.MaxMessageSize+1)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil // server is shutting down
			}
			log.Error().Err(err).Msg("Failed to read datagram")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		log.Debug().Str("remote_addr", raddr.String()).Int("len", n).Msg("Received datagram")
		go s.handle(ctx, conn, raddr, data)
	}
}

// handle decodes one datagram from the well-known port and starts the
// matching transfer. Anything other than a well-formed request is answered
// with a protocol Error message.
func (s *ServerUDP) handle(ctx context.Context, conn *net.UDPConn, raddr *net.UDPAddr, data []byte) {
	msg, err := messages.Unmarshal(data)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", raddr.String()).Msg("Malformed datagram")
		code, text := classifyParseError(err)
		sendError(conn, raddr, code, text)
		return
	}

	switch req := msg.(type) {
	case *messages.ReadRequest:
		if err := s.handleRead(ctx, raddr, req); err != nil {
			log.Error().Err(err).Str("remote_addr", raddr.String()).Msg("Read transfer failed")
		}
	case *messages.WriteRequest:
		if err := s.handleWrite(ctx, raddr, req); err != nil {
			log.Error().Err(err).Str("remote_addr", raddr.String()).Msg("Write transfer failed")
		}
	default:
		log.Warn().
			Stringer("type", msg.Type()).
			Str("remote_addr", raddr.String()).
			Msg("Unexpected message on request port")
		sendError(conn, raddr, messages.CodeIllegalOperation, "expected read or write request")
	}
}

// handleRead streams a file to the client in 512-byte Data blocks, waiting
// for the matching Ack after each one.
func (s *ServerUDP) handleRead(ctx context.Context, raddr *net.UDPAddr, req *messages.ReadRequest) error {
	conn, sess, id, err := s.beginTransfer(raddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer s.slotRelease()

	log.Info().
		Str("transfer_id", id.String()).
		Str("file", req.Filename).
		Stringer("mode", req.Mode).
		Uint16("local_tid", uint16(sess.LocalTID())).
		Uint16("remote_tid", uint16(sess.RemoteTID())).
		Msg("Read transfer started")

	path, err := s.resolvePath(req.Filename)
	if err != nil {
		sendError(conn, raddr, messages.CodeAccessViolation, "access violation")
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		sendError(conn, raddr, messages.CodeFileNotFound, "file not found")
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var total uint64
	var block uint16 = 1
	chunk := make([]byte, messages.MaxPayloadSize)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := io.ReadFull(f, chunk)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			sendError(conn, raddr, messages.CodeNotDefined, "read failed")
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		data, err := messages.NewData(block, chunk[:n])
		if err != nil {
			return fmt.Errorf("failed to create data message: %w", err)
		}

		if err := s.send(conn, raddr, sess, data); err != nil {
			return err
		}
		total += uint64(n)

		ack, err := s.recvAck(conn, raddr, sess)
		if err != nil {
			return err
		}
		if ack.Block != block {
			sendError(conn, raddr, messages.CodeIllegalOperation, "unexpected block number")
			return fmt.Errorf("expected ack for block %d, got %d", block, ack.Block)
		}

		// A short block ends the transfer
		if n < messages.MaxPayloadSize {
			break
		}
		block++
	}

	log.Info().
		Str("transfer_id", id.String()).
		Str("file", req.Filename).
		Str("total_sent", utils.DisplayB(total)).
		Uint16("messages", sess.Seq()).
		Msg("Read transfer complete")

	return nil
}

// handleWrite accepts a file from the client: Ack block 0, then collect Data
// blocks until a short one arrives.
func (s *ServerUDP) handleWrite(ctx context.Context, raddr *net.UDPAddr, req *messages.WriteRequest) error {
	conn, sess, id, err := s.beginTransfer(raddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer s.slotRelease()

	log.Info().
		Str("transfer_id", id.String()).
		Str("file", req.Filename).
		Stringer("mode", req.Mode).
		Uint16("local_tid", uint16(sess.LocalTID())).
		Uint16("remote_tid", uint16(sess.RemoteTID())).
		Msg("Write transfer started")

	path, err := s.resolvePath(req.Filename)
	if err != nil {
		sendError(conn, raddr, messages.CodeAccessViolation, "access violation")
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			sendError(conn, raddr, messages.CodeFileExists, "file already exists")
		} else {
			sendError(conn, raddr, messages.CodeAccessViolation, "access violation")
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := s.send(conn, raddr, sess, messages.NewAcknowledgement(0)); err != nil {
		return err
	}

	var total uint64
	var expected uint16 = 1

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		data, err := s.recvData(conn, raddr, sess)
		if err != nil {
			return err
		}
		if data.Block != expected {
			sendError(conn, raddr, messages.CodeIllegalOperation, "unexpected block number")
			return fmt.Errorf("expected block %d, got %d", expected, data.Block)
		}

		if _, err := f.Write(data.Payload); err != nil {
			sendError(conn, raddr, messages.CodeDiskFull, "write failed")
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		total += uint64(len(data.Payload))

		if err := s.send(conn, raddr, sess, messages.NewAcknowledgement(data.Block)); err != nil {
			return err
		}

		if len(data.Payload) < messages.MaxPayloadSize {
			break
		}
		expected++
	}

	log.Info().
		Str("transfer_id", id.String()).
		Str("file", req.Filename).
		Str("total_rcvd", utils.DisplayB(total)).
		Uint16("messages", sess.Seq()).
		Msg("Write transfer complete")

	return nil
}

// beginTransfer opens the ephemeral transfer socket, which allocates the
// fresh local TID, and sets up the session record for the exchange.
func (s *ServerUDP) beginTransfer(raddr *net.UDPAddr) (*net.UDPConn, *session.Session, ulid.ULID, error) {
	if !s.slotAcquire() {
		// Answer on a throwaway socket; the request socket stays free
		if conn, err := net.ListenUDP("udp", nil); err == nil {
			sendError(conn, raddr, messages.CodeNotDefined, "server is busy")
			conn.Close()
		}
		return nil, nil, ulid.ULID{}, fmt.Errorf("server is busy: max concurrent transfers reached")
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		s.slotRelease()
		return nil, nil, ulid.ULID{}, fmt.Errorf("failed to open transfer socket: %w", err)
	}

	id, err := utils.NewULID()
	if err != nil {
		conn.Close()
		s.slotRelease()
		return nil, nil, ulid.ULID{}, fmt.Errorf("failed to generate transfer ID: %w", err)
	}

	localTID := session.TID(conn.LocalAddr().(*net.UDPAddr).Port)
	sess := session.New(localTID, session.TID(raddr.Port))

	return conn, sess, id, nil
}

// send marshals msg, writes it as one datagram, and records it on the session.
func (s *ServerUDP) send(conn *net.UDPConn, raddr *net.UDPAddr, sess *session.Session, msg messages.Message) error {
	conn.SetWriteDeadline(time.Now().Add(s.timeout))

	if _, err := conn.WriteToUDP(msg.Marshal(), raddr); err != nil {
		return fmt.Errorf("failed to send %s message: %w", msg.Type(), err)
	}
	sess.Record(msg)
	return nil
}

func (s *ServerUDP) recvAck(conn *net.UDPConn, raddr *net.UDPAddr, sess *session.Session) (*messages.Acknowledgement, error) {
	data, err := s.recvFrom(conn, raddr)
	if err != nil {
		return nil, err
	}

	ack, err := messages.UnmarshalAcknowledgement(data)
	if err != nil {
		sendError(conn, raddr, messages.CodeIllegalOperation, "expected acknowledgement")
		return nil, fmt.Errorf("failed to unmarshal ack message: %w", err)
	}
	sess.Record(ack)
	return ack, nil
}

func (s *ServerUDP) recvData(conn *net.UDPConn, raddr *net.UDPAddr, sess *session.Session) (*messages.Data, error) {
	data, err := s.recvFrom(conn, raddr)
	if err != nil {
		return nil, err
	}

	msg, err := messages.UnmarshalData(data)
	if err != nil {
		sendError(conn, raddr, messages.CodeIllegalOperation, "expected data block")
		return nil, fmt.Errorf("failed to unmarshal data message: %w", err)
	}
	sess.Record(msg)
	return msg, nil
}

// recvFrom reads one datagram from the expected remote TID. Datagrams from
// any other source are answered with an unknown-TID Error and skipped, per
// RFC 1350 section 4.
func (s *ServerUDP) recvFrom(conn *net.UDPConn, raddr *net.UDPAddr) ([]byte, error) {
	buf := make([]byte, messages.MaxMessageSize+1)

	for {
		conn.SetReadDeadline(time.Now().Add(s.timeout))

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to read datagram: %w", err)
		}

		if from.Port != raddr.Port || !from.IP.Equal(raddr.IP) {
			log.Warn().Str("remote_addr", from.String()).Msg("Datagram from unknown TID")
			sendError(conn, from, messages.CodeUnknownTID, "unknown transfer ID")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		return data, nil
	}
}

// resolvePath confines a requested filename to the server root.
func (s *ServerUDP) resolvePath(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	path := filepath.Join(s.root, clean)

	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return "", fmt.Errorf("path %q escapes the server root", name)
	}

	return path, nil
}

// classifyParseError translates a codec parse error into the Error message
// the peer should see.
func classifyParseError(err error) (messages.ErrorCode, string) {
	switch {
	case errors.Is(err, protocol.ErrInvalidOpcode):
		return messages.CodeIllegalOperation, "illegal operation"
	case errors.Is(err, protocol.ErrTooShort), errors.Is(err, protocol.ErrTooLong):
		return messages.CodeNotDefined, "malformed datagram"
	default:
		return messages.CodeNotDefined, err.Error()
	}
}

// sendError is best-effort: a peer that went away gets no second chance.
func sendError(conn *net.UDPConn, raddr *net.UDPAddr, code messages.ErrorCode, text string) {
	msg, err := messages.NewError(code, text)
	if err != nil {
		return
	}
	if _, err := conn.WriteToUDP(msg.Marshal(), raddr); err != nil {
		log.Debug().Err(err).Str("remote_addr", raddr.String()).Msg("Failed to send error message")
	}
}
