package xpk

import (
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []Header{
		{Mode: ModeRank, DictSize: 1, PackedSize: 100, RawSize: 1000},
		{Mode: ModeRank, DictSize: 256, PackedSize: 16, RawSize: 0},
		{Mode: ModeNestedRank, DictSize: 40, DictSize2: 200, PackedSize: 1 << 20, RawSize: 1 << 21},
		{Mode: ModeBackref, Inner: innerRaw, PackedSize: 20, RawSize: 30},
		{Mode: ModeBackref, Inner: innerPacked, PackedSize: 300, RawSize: 30000},
	}

	for _, want := range tests {
		t.Run(want.Mode.String(), func(t *testing.T) {
			buf := make([]byte, want.PackedSize)
			want.put(buf)

			if !IsPacked(buf) {
				t.Fatal("IsPacked = false")
			}
			got, err := ParseHeader(buf)
			if err != nil {
				t.Fatalf("ParseHeader failed: %v", err)
			}
			if got != want {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestHeaderAttrLayout(t *testing.T) {
	h := Header{Mode: ModeNestedRank, DictSize: 3, DictSize2: 5}
	if got := h.attr(); got != 0x00040201 {
		t.Errorf("attr = %#x, want 0x40201", got)
	}
	h = Header{Mode: ModeBackref, Inner: innerRaw}
	if got := h.attr(); got != 0x0102 {
		t.Errorf("attr = %#x, want 0x102", got)
	}
}

func TestParseHeaderRejects(t *testing.T) {
	valid := make([]byte, 32)
	Header{Mode: ModeBackref, Inner: innerPacked, PackedSize: 32, RawSize: 64}.put(valid)

	mutate := func(fn func([]byte)) []byte {
		buf := append([]byte(nil), valid...)
		fn(buf)
		return buf
	}

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"signature", mutate(func(b []byte) { b[3] = 'D' }), ErrInvalidSignature},
		{"short", valid[:15], ErrTruncatedInput},
		{"inner kind", mutate(func(b []byte) { b[5] = 2 }), ErrCorruptStream},
		{"backref dict2", mutate(func(b []byte) { b[6] = 1 }), ErrCorruptStream},
		{"rank dict2", mutate(func(b []byte) { b[4], b[6] = 0, 1 }), ErrCorruptStream},
		{"declared too long", mutate(func(b []byte) { b[8] = 33 }), ErrTruncatedInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseHeader(tt.buf); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestIsPacked(t *testing.T) {
	tests := []struct {
		buf  []byte
		want bool
	}{
		{nil, false},
		{[]byte("xpkd"), false},
		{[]byte("xpkd000000000000"), true},
		{[]byte("XPKD000000000000"), false},
		{[]byte("plain asset bytes"), false},
	}
	for _, tt := range tests {
		if got := IsPacked(tt.buf); got != tt.want {
			t.Errorf("IsPacked(%q) = %v, want %v", tt.buf, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		err  bool
	}{
		{"rank", ModeRank, false},
		{"0", ModeRank, false},
		{"Nested", ModeNestedRank, false},
		{" backref ", ModeBackref, false},
		{"lz", ModeBackref, false},
		{"2", ModeBackref, false},
		{"3", 0, true},
		{"zip", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseMode(%q) error = %v", tt.in, err)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidMode) {
			t.Errorf("ParseMode(%q) error should wrap ErrInvalidMode", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, m := range Modes {
		text, err := m.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d) failed: %v", m, err)
		}
		var back Mode
		if err := back.UnmarshalText(text); err != nil || back != m {
			t.Errorf("text round trip of %s gave %s, %v", m, back, err)
		}
	}
	if _, err := Mode(9).MarshalText(); err == nil {
		t.Error("expected error marshaling invalid mode")
	}
}
