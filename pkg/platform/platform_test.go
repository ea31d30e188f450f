package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFirstLineReturnsOnlyFirstLine(t *testing.T) {
	r := RemoteLog{ErrorReport: "Error executing process > 'X'\nstack trace line 1\nstack trace line 2"}
	want := "Error executing process > 'X'"
	if got := r.FirstLine(); got != want {
		t.Errorf("FirstLine() = %q, want %q", got, want)
	}
}

func TestFirstLineSingleLine(t *testing.T) {
	r := RemoteLog{ErrorReport: "single line"}
	if got := r.FirstLine(); got != "single line" {
		t.Errorf("FirstLine() = %q, want %q", got, "single line")
	}
}

func TestFirstLineEmpty(t *testing.T) {
	r := RemoteLog{}
	if got := r.FirstLine(); got != "" {
		t.Errorf("FirstLine() = %q, want empty", got)
	}
}

func TestPollSkipsAmbiguousMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"workflows":[{"workflow":{"runName":"a"}},{"workflow":{"runName":"a"}}],"totalSize":2}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token", "workspace")
	log, ok, err := c.Poll(context.Background(), "a")
	if err != nil {
		t.Fatalf("Poll() error = %v, want nil", err)
	}
	if ok {
		t.Error("Poll() ok = true, want false for an ambiguous match")
	}
	if log != (RemoteLog{}) {
		t.Errorf("Poll() log = %+v, want zero value", log)
	}
}
