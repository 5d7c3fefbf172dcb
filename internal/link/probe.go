package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ProbeOptions configures a ProbeLink.
type ProbeOptions struct {
	// Interface, when set, must exist, be up and carry a non-loopback unicast address.
	Interface string
	// Address is the host:port dialed to prove the link carries traffic.
	Address string
	// ConnectTimeout bounds a single dial. Default 5s.
	ConnectTimeout time.Duration
	// KeepaliveInterval re-probes an established link. Zero or negative disables it.
	KeepaliveInterval time.Duration
	// Dial overrides the dialer (tests).
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// ProbeLink is the host link layer: association is the interface check, address
// acquisition is a successful dial of the probe endpoint.
type ProbeLink struct {
	opts ProbeOptions

	mu        sync.Mutex
	notify    Notify
	root      context.Context
	cancel    context.CancelFunc
	keepalive context.CancelFunc
	wg        sync.WaitGroup
}

// NewProbeLink creates a ProbeLink.
func NewProbeLink(opts ProbeOptions) *ProbeLink {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.Dial == nil {
		var d net.Dialer
		opts.Dial = d.DialContext
	}
	return &ProbeLink{opts: opts}
}

// Start brings the link up. Connect attempts and keepalives are bound to ctx.
func (p *ProbeLink) Start(ctx context.Context, notify Notify) error {
	if notify == nil {
		return errors.New("link: nil notify")
	}
	if p.opts.Address == "" {
		return errors.New("link: probe address not set")
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.root, p.cancel = context.WithCancel(ctx)
	p.notify = notify
	p.mu.Unlock()

	p.emit(Event{Kind: EventStarted})
	return nil
}

// Connect starts one asynchronous connect attempt.
func (p *ProbeLink) Connect(_ context.Context, attempt uint64) {
	p.mu.Lock()
	root := p.root
	p.stopKeepaliveLocked()
	p.mu.Unlock()

	if root == nil {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		addr, err := p.probe(root)
		if root.Err() != nil {
			return
		}
		if err != nil {
			p.emit(Event{Kind: EventDisconnected, Reason: err.Error(), Attempt: attempt})
			return
		}
		p.emit(Event{Kind: EventAddressAcquired, Address: addr, Attempt: attempt})
		p.armKeepalive(root, attempt)
	}()
}

// Close stops probing and waits for in-flight attempts.
func (p *ProbeLink) Close() error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.stopKeepaliveLocked()
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *ProbeLink) emit(e Event) {
	p.mu.Lock()
	notify := p.notify
	p.mu.Unlock()

	if e.At.IsZero() {
		e.At = time.Now()
	}
	notify(e)
}

// probe runs the association check and dials the probe endpoint, returning the
// local address used for the dial.
func (p *ProbeLink) probe(ctx context.Context) (string, error) {
	if p.opts.Interface != "" {
		if err := checkInterface(p.opts.Interface); err != nil {
			return "", err
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.opts.ConnectTimeout)
	defer cancel()

	conn, err := p.opts.Dial(dialCtx, "tcp", p.opts.Address)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", p.opts.Address, err)
	}
	defer conn.Close()

	if tcp, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		return tcp.IP.String(), nil
	}
	return conn.LocalAddr().String(), nil
}

func (p *ProbeLink) armKeepalive(root context.Context, attempt uint64) {
	if p.opts.KeepaliveInterval <= 0 {
		return
	}

	p.mu.Lock()
	p.stopKeepaliveLocked()
	ctx, cancel := context.WithCancel(root)
	p.keepalive = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.opts.KeepaliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.probe(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					// Report once and disarm until the next successful connect.
					p.emit(Event{Kind: EventDisconnected, Reason: "keepalive: " + err.Error(), Attempt: attempt})
					return
				}
			}
		}
	}()
}

func (p *ProbeLink) stopKeepaliveLocked() {
	if p.keepalive != nil {
		p.keepalive()
		p.keepalive = nil
	}
}

// checkInterface verifies a named interface is up with a usable address.
func checkInterface(name string) error {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return fmt.Errorf("interface %s: %w", name, err)
	}
	if iface.Flags&net.FlagUp == 0 {
		return fmt.Errorf("interface %s is down", name)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return fmt.Errorf("interface %s addresses: %w", name, err)
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if ok && !ipnet.IP.IsLoopback() && ipnet.IP.IsGlobalUnicast() {
			return nil
		}
	}
	return fmt.Errorf("interface %s has no address", name)
}
