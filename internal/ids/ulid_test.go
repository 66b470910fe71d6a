package ids

import (
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNew_ParsesAndIsMonotonic(t *testing.T) {
	prev := ""
	for i := 0; i < 100; i++ {
		id := New()
		if len(id) != ulid.EncodedSize {
			t.Fatalf("len=%d", len(id))
		}

		if _, err := ulid.Parse(id); err != nil {
			t.Fatalf("parse %q: %v", id, err)
		}

		if id <= prev {
			t.Fatalf("not increasing: %q after %q", id, prev)
		}

		prev = id
	}
}
