// Package libp2pnet implements the default TransportSink over libp2p
// streams: one stream per envelope under a dedicated protocol ID, a
// length-prefixed payload, and a single accepted/rejected acknowledgement
// byte read back as the message id. Host construction follows the pack's
// zentalk-node node.go libp2p.New(...) option list, without the DHT this
// sink has no use for — peers are addressed directly by name/device.
package libp2pnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"axocore/internal/domain"
	"axocore/internal/errs"
)

// EnvelopeProtocol is the dedicated stream protocol ID this sink speaks.
const EnvelopeProtocol = protocol.ID("/axocore/envelope/1.0.0")

const (
	ackAccepted byte = 1
	ackRejected byte = 0
)

// PeerDirectory resolves a (name, device) pair to a libp2p peer id and its
// addresses. This package provides no implementation.
type PeerDirectory interface {
	Resolve(name domain.Username, device domain.DeviceID) (peer.ID, []string, error)
}

// Sink is the default TransportSink implementation.
type Sink struct {
	host host.Host
	dir  PeerDirectory
	log  *slog.Logger
}

var _ domain.TransportSink = (*Sink)(nil)

// New builds a libp2p host listening on listenAddr and returns a Sink over
// it. Close the returned host when finished.
func New(listenAddr string, dir PeerDirectory, log *slog.Logger) (*Sink, error) {
	h, err := libp2p.New(
		libp2p.ListenAddrStrings(listenAddr),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
	)
	if err != nil {
		return nil, errs.Wrap(errs.Transport, "libp2pnet: create host", err)
	}
	s := &Sink{host: h, dir: dir, log: log}
	return s, nil
}

// Host exposes the underlying libp2p host so callers can register an
// inbound stream handler (ListenEnvelopes) or shut it down.
func (s *Sink) Host() host.Host { return s.host }

// ListenEnvelopes registers the protocol handler that decodes inbound
// envelopes and hands them to onEnvelope, acknowledging accepted/rejected.
func (s *Sink) ListenEnvelopes(onEnvelope func(raw []byte) bool) {
	s.host.SetStreamHandler(EnvelopeProtocol, func(stream network.Stream) {
		defer stream.Close()
		raw, err := readFramed(stream)
		if err != nil {
			if s.log != nil {
				s.log.Warn("libp2pnet: read envelope failed", "err", err)
			}
			return
		}
		ack := ackAccepted
		if !onEnvelope(raw) {
			ack = ackRejected
		}
		_, _ = stream.Write([]byte{ack})
	})
}

// SendBatch opens one stream per envelope, writes its length-prefixed
// bytes, and reads back the accepted/rejected ack byte. Accepts arrays
// and produces non-zero message ids for successful sends.
func (s *Sink) SendBatch(ctx context.Context, items []domain.OutboundEnvelope) ([]int64, error) {
	accepted := make([]int64, len(items))
	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(len(items))
	for i, item := range items {
		go func(i int, item domain.OutboundEnvelope) {
			defer wg.Done()
			ok, err := s.sendOne(ctx, item)
			if err != nil && s.log != nil {
				s.log.Warn("libp2pnet: send failed", "to", item.Name, "device", item.DeviceID, "err", err)
			}
			mu.Lock()
			if ok {
				accepted[i] = item.MessageID
			}
			mu.Unlock()
		}(i, item)
	}
	wg.Wait()
	return accepted, nil
}

func (s *Sink) sendOne(ctx context.Context, item domain.OutboundEnvelope) (bool, error) {
	if s.dir == nil {
		return false, errs.New(errs.Transport, "libp2pnet: no peer directory configured")
	}
	peerID, addrs, err := s.dir.Resolve(item.Name, item.DeviceID)
	if err != nil {
		return false, err
	}
	if err := connectIfNeeded(ctx, s.host, peerID, addrs); err != nil {
		return false, err
	}

	stream, err := s.host.NewStream(ctx, peerID, EnvelopeProtocol)
	if err != nil {
		return false, errs.Wrap(errs.Transport, "libp2pnet: open stream", err)
	}
	defer stream.Close()

	if err := writeFramed(stream, item.Bytes); err != nil {
		return false, err
	}

	ack := make([]byte, 1)
	if _, err := io.ReadFull(stream, ack); err != nil {
		return false, errs.Wrap(errs.Transport, "libp2pnet: read ack", err)
	}
	return ack[0] == ackAccepted, nil
}

func writeFramed(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errs.Wrap(errs.Transport, "libp2pnet: write length prefix", err)
	}
	if _, err := w.Write(payload); err != nil {
		return errs.Wrap(errs.Transport, "libp2pnet: write frame", err)
	}
	return nil
}

func readFramed(stream network.Stream) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(stream, lenBuf[:]); err != nil {
		return nil, errs.Wrap(errs.Transport, "libp2pnet: read length prefix", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(stream, buf); err != nil {
		return nil, errs.Wrap(errs.Transport, "libp2pnet: read frame", err)
	}
	return buf, nil
}

func connectIfNeeded(ctx context.Context, h host.Host, peerID peer.ID, addrs []string) error {
	if len(h.Peerstore().Addrs(peerID)) > 0 {
		return nil
	}
	return errs.New(errs.Transport, fmt.Sprintf("libp2pnet: peer %s not in peerstore and no connect helper wired", peerID))
}
