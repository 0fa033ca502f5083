package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nettlesoup/tftpd/internal/protocol/messages"
	"github.com/nettlesoup/tftpd/internal/protocol/session"
	"github.com/nettlesoup/tftpd/internal/utils"
	"github.com/rs/zerolog/log"
)

type ClientUDP struct {
	host    string
	port    uint16
	timeout time.Duration
}

func NewClientUDP(host string, port uint16, timeout *time.Duration) *ClientUDP {
	t := utils.DefaultIfNil(timeout, 5*time.Second)
	return &ClientUDP{
		host:    host,
		port:    port,
		timeout: t,
	}
}

// exchange is the client half of one transfer: the local socket, the request
// port, the remote TID once the server's first reply reveals it, and the
// session record for the exchange.
type exchange struct {
	conn    *net.UDPConn
	server  *net.UDPAddr
	raddr   *net.UDPAddr
	sess    *session.Session
	timeout time.Duration
}

func (c *ClientUDP) dial() (*exchange, error) {
	server, err := net.ResolveUDPAddr("udp", net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve server address: %w", err)
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open transfer socket: %w", err)
	}

	return &exchange{
		conn:    conn,
		server:  server,
		timeout: c.timeout,
	}, nil
}

func (x *exchange) close() {
	x.conn.Close()
}

// sendRequest sends the initial RRQ/WRQ to the well-known port. The request
// is not recorded on a session yet: the exchange only exists once the
// server's reply reveals its ephemeral TID.
func (x *exchange) sendRequest(req messages.Message) error {
	x.conn.SetWriteDeadline(time.Now().Add(x.timeout))

	if _, err := x.conn.WriteToUDP(req.Marshal(), x.server); err != nil {
		return fmt.Errorf("failed to send %s message: %w", req.Type(), err)
	}
	return nil
}

func (x *exchange) send(msg messages.Message) error {
	x.conn.SetWriteDeadline(time.Now().Add(x.timeout))

	if _, err := x.conn.WriteToUDP(msg.Marshal(), x.raddr); err != nil {
		return fmt.Errorf("failed to send %s message: %w", msg.Type(), err)
	}
	x.sess.Record(msg)
	return nil
}

// recv reads the next datagram of this exchange. The first reply from the
// server's IP locks in the remote TID and creates the session record; after
// that, datagrams from any other source are dropped.
func (x *exchange) recv() (messages.Message, error) {
	buf := make([]byte, messages.MaxMessageSize+1)

	for {
		x.conn.SetReadDeadline(time.Now().Add(x.timeout))

		n, from, err := x.conn.ReadFromUDP(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to read datagram: %w", err)
		}

		if x.raddr == nil {
			if !from.IP.Equal(x.server.IP) {
				log.Warn().Str("remote_addr", from.String()).Msg("Reply from unexpected host")
				continue
			}
			x.raddr = from
			localTID := session.TID(x.conn.LocalAddr().(*net.UDPAddr).Port)
			x.sess = session.New(localTID, session.TID(from.Port))
		} else if from.Port != x.raddr.Port || !from.IP.Equal(x.raddr.IP) {
			log.Warn().Str("remote_addr", from.String()).Msg("Datagram from unknown TID")
			continue
		}

		msg, err := messages.Unmarshal(buf[:n])
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal datagram: %w", err)
		}
		x.sess.Record(msg)
		return msg, nil
	}
}

// Get fetches filename from the server into w and returns the number of
// payload bytes received.
func (c *ClientUDP) Get(ctx context.Context, filename string, w io.Writer, opts TransferOpts) (uint64, error) {
	req, err := messages.NewReadRequest(filename, opts.GetMode())
	if err != nil {
		return 0, fmt.Errorf("failed to create read request: %w", err)
	}

	x, err := c.dial()
	if err != nil {
		return 0, err
	}
	defer x.close()

	if err := x.sendRequest(req); err != nil {
		return 0, err
	}

	var total uint64
	var expected uint16 = 1

	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		msg, err := x.recv()
		if err != nil {
			return total, err
		}

		data, err := expectData(msg)
		if err != nil {
			return total, err
		}
		if data.Block != expected {
			return total, fmt.Errorf("expected block %d, got %d", expected, data.Block)
		}

		if _, err := w.Write(data.Payload); err != nil {
			return total, fmt.Errorf("failed to write block %d: %w", data.Block, err)
		}
		total += uint64(len(data.Payload))

		if err := x.send(messages.NewAcknowledgement(data.Block)); err != nil {
			return total, err
		}

		// A short block ends the transfer
		if len(data.Payload) < messages.MaxPayloadSize {
			break
		}
		expected++
	}

	log.Info().
		Str("file", filename).
		Str("total_rcvd", utils.DisplayB(total)).
		Uint16("messages", x.sess.Seq()).
		Msg("Download complete")

	return total, nil
}

// Put uploads the contents of r to the server as filename and returns the
// number of payload bytes sent.
func (c *ClientUDP) Put(ctx context.Context, filename string, r io.Reader, opts TransferOpts) (uint64, error) {
	req, err := messages.NewWriteRequest(filename, opts.GetMode())
	if err != nil {
		return 0, fmt.Errorf("failed to create write request: %w", err)
	}

	x, err := c.dial()
	if err != nil {
		return 0, err
	}
	defer x.close()

	if err := x.sendRequest(req); err != nil {
		return 0, err
	}

	// The server acknowledges a write request with block 0
	if err := awaitAck(x, 0); err != nil {
		return 0, err
	}

	var total uint64
	var block uint16 = 1
	chunk := make([]byte, messages.MaxPayloadSize)

	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		n, err := readChunk(r, chunk)
		if err != nil {
			return total, fmt.Errorf("failed to read block %d: %w", block, err)
		}

		data, err := messages.NewData(block, chunk[:n])
		if err != nil {
			return total, fmt.Errorf("failed to create data message: %w", err)
		}

		if err := x.send(data); err != nil {
			return total, err
		}
		total += uint64(n)

		if err := awaitAck(x, block); err != nil {
			return total, err
		}

		if n < messages.MaxPayloadSize {
			break
		}
		block++
	}

	log.Info().
		Str("file", filename).
		Str("total_sent", utils.DisplayB(total)).
		Uint16("messages", x.sess.Seq()).
		Msg("Upload complete")

	return total, nil
}

func expectData(msg messages.Message) (*messages.Data, error) {
	switch m := msg.(type) {
	case *messages.Data:
		return m, nil
	case *messages.Error:
		return nil, fmt.Errorf("server error %d: %s", m.Code, m.Message)
	default:
		return nil, fmt.Errorf("expected data block, got %s", msg.Type())
	}
}

func awaitAck(x *exchange, block uint16) error {
	msg, err := x.recv()
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *messages.Acknowledgement:
		if m.Block != block {
			return fmt.Errorf("expected ack for block %d, got %d", block, m.Block)
		}
		return nil
	case *messages.Error:
		return fmt.Errorf("server error %d: %s", m.Code, m.Message)
	default:
		return fmt.Errorf("expected acknowledgement, got %s", msg.Type())
	}
}

// readChunk fills buf from r, treating EOF as a short (final) chunk.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}
