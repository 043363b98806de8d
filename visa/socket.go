package visa

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nasa-jpl/golaborate-vna/comm"
)

// socketLink is a raw SCPI socket backed by a single connection pool.  The
// connection is re-dialed after it has sat idle or failed, which is
// invisible to the session above.
type socketLink struct {
	pool *comm.Pool

	mu      sync.Mutex
	timeout time.Duration
}

func openSocket(res Resource, cfg Config) (link, error) {
	addr := net.JoinHostPort(res.Host, strconv.Itoa(res.Port))
	l := &socketLink{
		pool:    comm.NewPool(1, cfg.IdleTimeout, comm.BackingOffTCPConnMaker(addr, cfg.Timeout)),
		timeout: cfg.Timeout,
	}
	// dial now so a bad address fails at open
	conn, err := l.pool.Get()
	if err != nil {
		l.pool.Close()
		return nil, err
	}
	l.pool.Put(conn)
	return l, nil
}

func (l *socketLink) setTimeout(d time.Duration) {
	l.mu.Lock()
	l.timeout = d
	l.mu.Unlock()
}

func (l *socketLink) currentTimeout() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timeout
}

func (l *socketLink) Read(p []byte) (n int, err error) {
	conn, err := l.pool.Get()
	if err != nil {
		return 0, err
	}
	defer func() { l.pool.ReturnWithError(conn, err) }()
	var wrap *comm.Timeout
	wrap, err = comm.NewTimeout(conn, l.currentTimeout())
	if err != nil {
		return 0, err
	}
	n, err = wrap.Read(p)
	return n, err
}

func (l *socketLink) Write(p []byte) (n int, err error) {
	conn, err := l.pool.Get()
	if err != nil {
		return 0, err
	}
	defer func() { l.pool.ReturnWithError(conn, err) }()
	var wrap *comm.Timeout
	wrap, err = comm.NewTimeout(conn, l.currentTimeout())
	if err != nil {
		return 0, err
	}
	n, err = wrap.Write(p)
	return n, err
}

func (l *socketLink) Close() error {
	return l.pool.Close()
}
