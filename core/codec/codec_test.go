package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/momentics/vtx/api"
)

func TestPutGetFrameRoundTripSmall(t *testing.T) {
	c := NewWithDefaults(4096)
	frames := []api.Frame{
		{Body: []byte("hello"), More: true},
		{Body: []byte("world"), More: false},
		{Body: []byte{}, More: true},
	}
	for _, f := range frames {
		if err := c.PutFrame(f); err != nil {
			t.Fatalf("PutFrame(%v) = %v", f, err)
		}
	}
	for i, want := range frames {
		got, err := c.GetFrame()
		if err != nil {
			t.Fatalf("GetFrame() #%d = %v", i, err)
		}
		if !bytes.Equal(got.Body, want.Body) || got.More != want.More {
			t.Fatalf("GetFrame() #%d = %+v, want %+v", i, got, want)
		}
	}
	if _, err := c.GetFrame(); err != api.ErrEmpty {
		t.Fatalf("GetFrame() on drained codec = %v, want ErrEmpty", err)
	}
}

func TestPutGetFrameRoundTripLarge(t *testing.T) {
	c := NewWithDefaults(8192)
	large := bytes.Repeat([]byte{0xAB}, DefaultSmallCutoff*4)
	frames := []api.Frame{
		{Body: []byte("small"), More: true},
		{Body: large, More: false},
		{Body: []byte("tail"), More: false},
	}
	for _, f := range frames {
		if err := c.PutFrame(f); err != nil {
			t.Fatalf("PutFrame = %v", err)
		}
	}
	for i, want := range frames {
		got, err := c.GetFrame()
		if err != nil {
			t.Fatalf("GetFrame() #%d = %v", i, err)
		}
		if !bytes.Equal(got.Body, want.Body) || got.More != want.More {
			t.Fatalf("GetFrame() #%d length %d, want length %d", i, len(got.Body), len(want.Body))
		}
	}
}

func TestPutFrameFullOnExhaustion(t *testing.T) {
	c := New(32, 4, DefaultSmallCutoff)
	var err error
	for i := 0; i < 100; i++ {
		if err = c.PutFrame(api.Frame{Body: []byte("0123456789")}); err != nil {
			break
		}
	}
	if err != api.ErrFull {
		t.Fatalf("PutFrame exhaustion = %v, want ErrFull", err)
	}
}

func TestActiveMonotonicUnderGet(t *testing.T) {
	c := NewWithDefaults(4096)
	for i := 0; i < 10; i++ {
		if err := c.PutFrame(api.Frame{Body: []byte("payload")}); err != nil {
			t.Fatalf("PutFrame = %v", err)
		}
	}
	last := c.Active()
	for i := 0; i < 10; i++ {
		if _, err := c.GetFrame(); err != nil {
			t.Fatalf("GetFrame = %v", err)
		}
		cur := c.Active()
		if cur > last {
			t.Fatalf("Active() increased from %d to %d under get", last, cur)
		}
		last = cur
	}
	if last != 0 {
		t.Fatalf("Active() after full drain = %d, want 0", last)
	}
}

func TestCheckDetectsHealthyState(t *testing.T) {
	c := NewWithDefaults(4096)
	for i := 0; i < 5; i++ {
		c.PutFrame(api.Frame{Body: []byte("abc")})
	}
	if err := c.Check(); err != nil {
		t.Fatalf("Check() = %v, want nil", err)
	}
	c.GetFrame()
	if err := c.Check(); err != nil {
		t.Fatalf("Check() after one get = %v, want nil", err)
	}
}

func TestSpaceShrinksAsFull(t *testing.T) {
	c := New(64, 8, DefaultSmallCutoff)
	initial := c.Space()
	if initial != 64 {
		t.Fatalf("Space() on empty codec = %d, want 64", initial)
	}
	c.PutFrame(api.Frame{Body: []byte("0123456789")})
	if c.Space() >= initial {
		t.Fatalf("Space() did not shrink after PutFrame: %d", c.Space())
	}
}

// TestCodecRandomizedRoundTrip mirrors the dual-path scenario: 10,000
// frames with an 80/20 split between small and large bodies are put into
// codec A with PutFrame, relayed byte-for-byte via GetBytes/Tick into
// codec B with PutBytes, then drained from B with GetFrame. The frame
// sequence recovered from B must equal the sequence fed into A.
func TestCodecRandomizedRoundTrip(t *testing.T) {
	const n = 10000
	rng := rand.New(rand.NewSource(42))

	type want struct {
		body []byte
		more bool
	}
	wants := make([]want, 0, n)

	a := New(8<<20, 16384, DefaultSmallCutoff)
	b := New(8<<20, 16384, DefaultSmallCutoff)

	for i := 0; i < n; i++ {
		var size int
		if rng.Intn(10) < 8 {
			size = rng.Intn(DefaultSmallCutoff)
		} else {
			size = DefaultSmallCutoff + rng.Intn(5000-DefaultSmallCutoff)
		}
		body := make([]byte, size)
		rng.Read(body)
		more := rng.Intn(10) < 7

		if err := a.PutFrame(api.Frame{Body: body, More: more}); err != nil {
			t.Fatalf("PutFrame #%d (size=%d) = %v", i, size, err)
		}
		wants = append(wants, want{body: body, more: more})
	}

	for {
		chunk, err := a.GetBytes()
		if err == api.ErrEmpty {
			break
		}
		if err != nil {
			t.Fatalf("GetBytes() = %v", err)
		}
		owned := append([]byte(nil), chunk...)
		if err := b.PutBytes(owned); err != nil {
			t.Fatalf("PutBytes() = %v", err)
		}
		if err := a.Tick(len(chunk)); err != nil {
			t.Fatalf("Tick(%d) = %v", len(chunk), err)
		}
	}

	for i, w := range wants {
		got, err := b.GetFrame()
		if err != nil {
			t.Fatalf("GetFrame() #%d = %v", i, err)
		}
		if got.More != w.more {
			t.Fatalf("GetFrame() #%d more = %v, want %v", i, got.More, w.more)
		}
		if !bytes.Equal(got.Body, w.body) {
			t.Fatalf("GetFrame() #%d body mismatch: got %d bytes, want %d bytes", i, len(got.Body), len(w.body))
		}
	}
	if _, err := b.GetFrame(); err != api.ErrEmpty {
		t.Fatalf("GetFrame() after full relay drain = %v, want ErrEmpty", err)
	}
}
