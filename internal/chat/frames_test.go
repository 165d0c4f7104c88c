package chat

import "testing"

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	t.Run("message", func(t *testing.T) {
		t.Parallel()

		f, err := DecodeFrame([]byte(`{"type":"message","role":"assistant","content":"hi"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		mf, ok := f.(MessageFrame)
		if !ok {
			t.Fatalf("got %T want MessageFrame", f)
		}
		if mf.Role != RoleAssistant || mf.Content != "hi" {
			t.Fatalf("unexpected frame: %+v", mf)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()

		f, err := DecodeFrame([]byte(`{"type":"error","message":"llm unavailable"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		ef, ok := f.(ErrorFrame)
		if !ok {
			t.Fatalf("got %T want ErrorFrame", f)
		}
		if ef.Message != "llm unavailable" {
			t.Fatalf("unexpected frame: %+v", ef)
		}
	})

	t.Run("history with list content", func(t *testing.T) {
		t.Parallel()

		f, err := DecodeFrame([]byte(`{"type":"history","messages":[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		hf, ok := f.(HistoryFrame)
		if !ok {
			t.Fatalf("got %T want HistoryFrame", f)
		}
		if len(hf.Messages) != 2 {
			t.Fatalf("messages=%d want=2", len(hf.Messages))
		}
	})
}

func TestDecodeFrameRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
	}{
		{name: "not json", in: `{{`},
		{name: "unknown kind", in: `{"type":"presence"}`},
		{name: "missing kind", in: `{"role":"user"}`},
		{name: "unknown role", in: `{"type":"message","role":"system","content":"x"}`},
	}

	for _, tc := range cases {
		if _, err := DecodeFrame([]byte(tc.in)); err == nil {
			t.Fatalf("%s: decode accepted %q", tc.name, tc.in)
		}
	}
}
