package subscription

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestRegistry_AddListRemove(t *testing.T) {
	r := NewRegistry()

	r.Add("tab-1", "conn-b")
	r.Add("tab-1", "conn-a")
	r.Add("tab-1", "conn-a")
	r.Add("tab-2", "conn-a")

	if got := strings.Join(r.List("tab-1"), ","); got != "conn-a,conn-b" {
		t.Errorf("List(tab-1) = %s", got)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}

	r.Remove("tab-1", "conn-b")
	if got := strings.Join(r.List("tab-1"), ","); got != "conn-a" {
		t.Errorf("List(tab-1) after Remove = %s", got)
	}

	r.Remove("tab-3", "conn-a")
	if len(r.List("tab-3")) != 0 {
		t.Error("unknown tab should have no subscribers")
	}
}

func TestRegistry_RemoveAll(t *testing.T) {
	r := NewRegistry()
	r.Add("tab-1", "conn-a")
	r.Add("tab-2", "conn-a")
	r.Add("tab-2", "conn-b")

	if n := r.RemoveAll("conn-a"); n != 2 {
		t.Errorf("RemoveAll() = %d, want 2", n)
	}
	if len(r.List("tab-1")) != 0 {
		t.Error("tab-1 should have no subscribers")
	}
	if got := r.List("tab-2"); len(got) != 1 || got[0] != "conn-b" {
		t.Errorf("List(tab-2) = %v", got)
	}
	if n := r.RemoveAll("conn-a"); n != 0 {
		t.Errorf("second RemoveAll() = %d, want 0", n)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("conn-%d", i)
			r.Add("shared", conn)
			r.List("shared")
			if i%2 == 0 {
				r.RemoveAll(conn)
			}
		}(i)
	}
	wg.Wait()

	if got := len(r.List("shared")); got != 10 {
		t.Errorf("len(List) = %d, want 10", got)
	}
}
