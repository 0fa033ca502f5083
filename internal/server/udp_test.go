package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nettlesoup/tftpd/internal/client"
	"github.com/nettlesoup/tftpd/internal/protocol/messages"
	"github.com/nettlesoup/tftpd/internal/utils"
	"github.com/stretchr/testify/require"
)

// startServer runs a server on an ephemeral loopback port and returns its
// bound address.
func startServer(t *testing.T, root string) *net.UDPAddr {
	t.Helper()

	srv := NewServerUDP(ServerOpts{
		Root:                   root,
		Host:                   "127.0.0.1",
		Port:                   0,
		Timeout:                2 * time.Second,
		MaxConcurrentTransfers: 4,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = srv.Run(ctx)
	}()

	var addr *net.UDPAddr
	require.Eventually(t, func() bool {
		addr = srv.Addr()
		return addr != nil
	}, 2*time.Second, 10*time.Millisecond, "server did not bind")

	return addr
}

func newTestClient(addr *net.UDPAddr) *client.ClientUDP {
	return client.NewClientUDP("127.0.0.1", uint16(addr.Port), utils.Ptr(2*time.Second))
}

func TestReadTransfer(t *testing.T) {
	root := t.TempDir()

	// three blocks: 512 + 512 + 210
	content := make([]byte, 1234)
	_, err := rand.Read(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), content, 0o644))

	addr := startServer(t, root)
	cli := newTestClient(addr)

	var buf bytes.Buffer
	n, err := cli.Get(context.Background(), "blob.bin", &buf, client.TransferOpts{})
	require.NoError(t, err)
	require.Equal(t, uint64(len(content)), n)
	require.Equal(t, content, buf.Bytes())
}

func TestReadTransferSmallFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello"), 0o644))

	addr := startServer(t, root)
	cli := newTestClient(addr)

	var buf bytes.Buffer
	_, err := cli.Get(context.Background(), "hello.txt", &buf, client.TransferOpts{})
	require.NoError(t, err)
	require.Equal(t, "hello", buf.String())
}

func TestReadMissingFile(t *testing.T) {
	addr := startServer(t, t.TempDir())
	cli := newTestClient(addr)

	var buf bytes.Buffer
	_, err := cli.Get(context.Background(), "nope.txt", &buf, client.TransferOpts{})
	require.ErrorContains(t, err, "file not found")
}

func TestWriteTransfer(t *testing.T) {
	root := t.TempDir()
	addr := startServer(t, root)
	cli := newTestClient(addr)

	content := make([]byte, 700)
	_, err := rand.Read(content)
	require.NoError(t, err)

	n, err := cli.Put(context.Background(), "upload.bin", bytes.NewReader(content), client.TransferOpts{})
	require.NoError(t, err)
	require.Equal(t, uint64(len(content)), n)

	written, err := os.ReadFile(filepath.Join(root, "upload.bin"))
	require.NoError(t, err)
	require.Equal(t, content, written)
}

func TestWriteExistingFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "taken.txt"), []byte("x"), 0o644))

	addr := startServer(t, root)
	cli := newTestClient(addr)

	_, err := cli.Put(context.Background(), "taken.txt", strings.NewReader("y"), client.TransferOpts{})
	require.ErrorContains(t, err, "file already exists")
}

// A malformed datagram on the request port is answered with a protocol Error
// message, and the server keeps running.
func TestMalformedDatagramAnswered(t *testing.T) {
	addr := startServer(t, t.TempDir())

	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x00, 0x09, 'j', 'u', 'n', 'k'})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, messages.MaxMessageSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	msg, err := messages.Unmarshal(buf[:n])
	require.NoError(t, err)

	errMsg, ok := msg.(*messages.Error)
	require.True(t, ok, "expected an Error message, got %s", msg.Type())
	require.Equal(t, messages.CodeIllegalOperation, errMsg.Code)
}

// A Data message on the request port is not a request.
func TestNonRequestOnRequestPort(t *testing.T) {
	addr := startServer(t, t.TempDir())

	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer conn.Close()

	data, err := messages.NewData(1, []byte{0x01})
	require.NoError(t, err)
	_, err = conn.Write(data.Marshal())
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, messages.MaxMessageSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	msg, err := messages.Unmarshal(buf[:n])
	require.NoError(t, err)
	require.Equal(t, messages.CodeIllegalOperation, msg.(*messages.Error).Code)
}

// Requests that try to climb out of the root are pinned back inside it.
func TestResolvePathConfinement(t *testing.T) {
	root := t.TempDir()
	srv := NewServerUDP(ServerOpts{Root: root})

	tests := []struct {
		name string
		want string
	}{
		{"file.txt", filepath.Join(root, "file.txt")},
		{"dir/file.txt", filepath.Join(root, "dir", "file.txt")},
		{"../../etc/passwd", filepath.Join(root, "etc", "passwd")},
		{"/abs/path", filepath.Join(root, "abs", "path")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := srv.resolvePath(tt.name)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.True(t, strings.HasPrefix(got, root))
		})
	}
}
