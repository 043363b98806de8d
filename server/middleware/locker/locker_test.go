package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/golaborate-vna/generichttp"
)

type table struct{ rt generichttp.RouteTable }

func (t table) RT() generichttp.RouteTable { return t.rt }

func TestLockBouncesProtectedRoutes(t *testing.T) {
	h := table{rt: generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/frequency"}: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}}
	l := New()
	Inject(h, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	h.RT().Bind(r)

	do := func(method, path, body string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w.Code
	}
	if code := do(http.MethodPost, "/frequency", ""); code != http.StatusOK {
		t.Fatalf("unlocked route gave %d", code)
	}
	if code := do(http.MethodPost, "/lock", `{"bool":true}`); code != http.StatusOK {
		t.Fatalf("lock gave %d", code)
	}
	if !l.Locked() {
		t.Fatal("not locked")
	}
	if code := do(http.MethodPost, "/frequency", ""); code != http.StatusLocked {
		t.Errorf("locked route gave %d", code)
	}
	if code := do(http.MethodGet, "/lock", ""); code != http.StatusOK {
		t.Errorf("the lock route itself must stay reachable, got %d", code)
	}
	if code := do(http.MethodPost, "/lock", `{"bool":false}`); code != http.StatusOK || l.Locked() {
		t.Errorf("unlock gave %d, locked=%v", code, l.Locked())
	}
}
