// Package netio implements engine.Network on top of a single
// net.UDPConn (§6): one socket used for both the client-facing and
// upstream-facing traffic, with datagrams classified by comparing their
// source address to the configured upstream.
package netio

import (
	"fmt"
	"net"

	"github.com/mikispag/dnscache/internal/engine"
	"github.com/sirupsen/logrus"
)

// UDP implements engine.Network.
type UDP struct {
	conn     *net.UDPConn
	upstream *net.UDPAddr
	log      logrus.FieldLogger
}

// Listen binds listenAddr and resolves upstreamAddr. It warns, per §6,
// when listening on loopback while the upstream is not also loopback.
func Listen(listenAddr, upstreamAddr string, log logrus.FieldLogger) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("netio: resolve listen address: %w", err)
	}
	uaddr, err := net.ResolveUDPAddr("udp", upstreamAddr)
	if err != nil {
		return nil, fmt.Errorf("netio: resolve upstream address: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("netio: listen: %w", err)
	}
	if laddr.IP.IsLoopback() && !uaddr.IP.IsLoopback() {
		log.Warnf("listening on loopback %s but upstream %s is not loopback; replies may never reach you", listenAddr, upstreamAddr)
	}
	return &UDP{conn: conn, upstream: uaddr, log: log}, nil
}

// Close releases the underlying socket, unblocking any in-flight Recv.
func (u *UDP) Close() error {
	return u.conn.Close()
}

// SendToClient implements engine.Network.
func (u *UDP) SendToClient(buf []byte, client engine.ClientID) error {
	addr, ok := client.(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("netio: unexpected client id type %T", client)
	}
	_, err := u.conn.WriteToUDP(buf, addr)
	return err
}

// SendToUpstream implements engine.Network.
func (u *UDP) SendToUpstream(buf []byte) error {
	_, err := u.conn.WriteToUDP(buf, u.upstream)
	return err
}

// Recv implements engine.Network, classifying the datagram's source
// address against the configured upstream.
func (u *UDP) Recv(buf []byte) (int, engine.ReceiveResult, error) {
	n, addr, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, engine.ReceiveResult{}, err
	}
	if addr.IP.Equal(u.upstream.IP) && addr.Port == u.upstream.Port {
		return n, engine.ReceiveResult{Kind: engine.FromUpstream}, nil
	}
	return n, engine.ReceiveResult{Kind: engine.FromClient, ID: addr}, nil
}
