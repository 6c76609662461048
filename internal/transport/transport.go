// Package transport implements the control device's Unix-socket
// endpoint (§3 "control device ... byte stream"): one accepted
// connection becomes one objects.ControlDevice, registered with its
// namespace's isolation domain and driven through internal/dispatch.
package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/broadcast"
	"github.com/dif-systems/rina-core/internal/dispatch"
	"github.com/dif-systems/rina-core/internal/dm"
	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/flowalloc"
	"github.com/dif-systems/rina-core/internal/logging"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
)

// The wire codec (internal/wire) serializes exactly one message body; it
// owns no framing for a byte stream carrying many of them back to back.
// Every frame on the socket is therefore a u32 little-endian length
// prefix followed by that many bytes of a single wire.Encode-d message.
const frameHeaderLen = 4

// MaxFrameSize bounds a single inbound frame, independent of
// queue.UpstreamByteBudget (which bounds outbound queuing, not a single
// wire read).
const MaxFrameSize = 64 * 1024

// Config names the namespace a Listener serves and the process-wide
// singletons every accepted connection's dispatch.Context needs.
type Config struct {
	Namespace  string
	SocketPath string

	Manager   *dm.Manager
	Factories *factory.Registry
	FlowAlloc *flowalloc.Allocator
	Broadcast *broadcast.Broadcaster

	// PrivilegedUIDs grants privileged capabilities to connections from
	// these additional uids, beyond uid 0. Nil means root-only.
	PrivilegedUIDs map[uint32]bool

	// Recorder, if set, observes every dispatched request (internal/metrics.Registry
	// satisfies this). Nil disables request metrics entirely.
	Recorder dispatch.Recorder
}

// Listener accepts connections on one namespace's control-device socket.
type Listener struct {
	cfg  Config
	ln   *net.UnixListener
	disp *dispatch.Dispatcher
	log  *logging.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

// Listen binds cfg.SocketPath, replacing any stale socket file left by a
// prior, uncleanly stopped process.
func Listen(cfg Config) (*Listener, error) {
	if cfg.Manager == nil || cfg.Factories == nil || cfg.FlowAlloc == nil || cfg.Broadcast == nil {
		return nil, coreerr.New("transport.Listen", coreerr.Invalid, "incomplete transport configuration")
	}
	if cfg.SocketPath == "" {
		return nil, coreerr.New("transport.Listen", coreerr.Invalid, "empty socket path")
	}

	_ = os.Remove(cfg.SocketPath)
	addr, err := net.ResolveUnixAddr("unix", cfg.SocketPath)
	if err != nil {
		return nil, coreerr.Wrap("transport.Listen", coreerr.Invalid, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, coreerr.Wrap("transport.Listen", coreerr.NoDevice, err)
	}

	disp := dispatch.New()
	disp.Recorder = cfg.Recorder

	return &Listener{
		cfg:   cfg,
		ln:    ln,
		disp:  disp,
		log:   logging.Default().With("component", "transport", "namespace", cfg.Namespace),
		conns: make(map[*conn]struct{}),
	}, nil
}

// Addr returns the bound socket path.
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// Serve accepts connections until ctx is cancelled or Close is called,
// blocking the caller. Every accepted connection gets its own read and
// write goroutines, torn down on disconnect, ctx cancellation, or Close.
func (l *Listener) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-stop:
		}
	}()

	for {
		uc, err := l.ln.AcceptUnix()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return nil
			}
			return coreerr.Wrap("transport.Serve", coreerr.NoDevice, err)
		}
		l.wg.Add(1)
		go l.handleConn(ctx, uc)
	}
}

// Close shuts the listener down and waits for every in-flight
// connection's loops to exit.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.closed = true
	for c := range l.conns {
		c.closeOnce()
	}
	l.mu.Unlock()

	err := l.ln.Close()
	l.wg.Wait()
	return err
}

// conn bundles one accepted connection's socket, control device, and
// privilege bit, plus the shutdown latch shared by its read/write loops.
type conn struct {
	uc         *net.UnixConn
	cd         *objects.ControlDevice
	privileged bool

	once sync.Once
}

func (c *conn) closeOnce() {
	c.once.Do(func() {
		c.uc.Close()
		c.cd.Close()
	})
}

func (l *Listener) handleConn(ctx context.Context, uc *net.UnixConn) {
	defer l.wg.Done()

	priv, err := peerPrivileged(uc, l.cfg.PrivilegedUIDs)
	if err != nil {
		l.log.Warn("peer credential probe failed, treating connection as unprivileged", "err", err)
	}

	domain, err := l.cfg.Manager.GetOrCreate(ctx, l.cfg.Namespace)
	if err != nil {
		l.log.Error("failed to acquire isolation domain", "err", err)
		uc.Close()
		return
	}
	defer l.cfg.Manager.Put(domain)

	c := &conn{uc: uc, cd: objects.NewControlDevice(), privileged: priv}
	domain.RegisterDevice(c.cd)

	l.mu.Lock()
	l.conns[c] = struct{}{}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.conns, c)
		l.mu.Unlock()
		l.cfg.Broadcast.Unsubscribe(c.cd)
		domain.UnregisterDevice(c.cd)
		c.closeOnce()
	}()

	dctx := &dispatch.Context{
		Domain:    domain,
		Device:    c.cd,
		Factories: l.cfg.Factories,
		FlowAlloc: l.cfg.FlowAlloc,
		Broadcast: l.cfg.Broadcast,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer c.closeOnce()
		l.readLoop(ctx, c, dctx)
	}()
	go func() {
		defer wg.Done()
		defer c.closeOnce()
		l.writeLoop(c)
	}()
	wg.Wait()
}

func (l *Listener) readLoop(ctx context.Context, c *conn, dctx *dispatch.Context) {
	for {
		buf, err := readFrame(c.uc)
		if err != nil {
			if err != io.EOF {
				l.log.Debug("control device read loop exiting", "err", err)
			}
			return
		}
		if _, derr := l.disp.Dispatch(ctx, dctx, c.privileged, buf); derr != nil {
			l.log.Debug("dispatch error", "err", derr)
		}
	}
}

func (l *Listener) writeLoop(c *conn) {
	for {
		msg, err := c.cd.Upstream.Read()
		if err != nil {
			return
		}
		buf, err := wire.Encode(msg)
		if err != nil {
			l.log.Warn("failed to encode outbound message, dropping", "err", err)
			continue
		}
		if err := writeFrame(c.uc, buf); err != nil {
			l.log.Debug("control device write loop exiting", "err", err)
			return
		}
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, coreerr.New("transport.readFrame", coreerr.Invalid, "frame exceeds maximum size")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, buf []byte) error {
	var hdr [frameHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(buf)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// peerPrivileged probes the connecting peer's credentials via
// SO_PEERCRED: uid 0, or a uid named in allow, is treated as a
// privileged (uipcp/admin-capable) control device.
func peerPrivileged(uc *net.UnixConn, allow map[uint32]bool) (bool, error) {
	raw, err := uc.SyscallConn()
	if err != nil {
		return false, coreerr.Wrap("transport.peerPrivileged", coreerr.Invalid, err)
	}

	var cred *unix.Ucred
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if ctrlErr != nil {
		return false, coreerr.Wrap("transport.peerPrivileged", coreerr.Invalid, ctrlErr)
	}
	if sockErr != nil {
		return false, coreerr.Wrap("transport.peerPrivileged", coreerr.Invalid, sockErr)
	}

	if cred.Uid == 0 {
		return true, nil
	}
	return allow[cred.Uid], nil
}
