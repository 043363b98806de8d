//go:build visa

package visa

import (
	"fmt"

	vi "github.com/jpoirier/visa"
)

// nativeLink is a session opened through the system VISA library.  The
// library's own timeout applies to its reads and writes.
type nativeLink struct {
	rm    vi.Session
	instr vi.Object
}

func openNative(res Resource, cfg Config) (link, error) {
	rm, status := vi.OpenDefaultRM()
	if status < vi.SUCCESS {
		return nil, fmt.Errorf("could not open the VISA resource manager, status %d", status)
	}
	instr, status := rm.Open(res.String(), vi.NULL, vi.NULL)
	if status < vi.SUCCESS {
		rm.Close()
		return nil, fmt.Errorf("VISA open failed with status %d", status)
	}
	return &nativeLink{rm: rm, instr: instr}, nil
}

func (l *nativeLink) Write(p []byte) (int, error) {
	n, status := l.instr.Write(p, uint32(len(p)))
	if status < vi.SUCCESS {
		return int(n), fmt.Errorf("VISA write failed with status %d", status)
	}
	return int(n), nil
}

func (l *nativeLink) Read(p []byte) (int, error) {
	b, n, status := l.instr.Read(uint32(len(p)))
	if status < vi.SUCCESS {
		return 0, fmt.Errorf("VISA read failed with status %d", status)
	}
	m := copy(p, b)
	if int(n) < m {
		m = int(n)
	}
	return m, nil
}

func (l *nativeLink) Close() error {
	l.instr.Close()
	l.rm.Close()
	return nil
}
