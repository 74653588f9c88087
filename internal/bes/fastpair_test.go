package bes

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestReverseFastPairModelID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"123456", "563412"},
		{"0x123456", "563412"},
		{"0xABCDEF", "efcdab"},
	}
	for _, tc := range tests {
		got, err := ReverseFastPairModelID(tc.in)
		if err != nil {
			t.Fatalf("ReverseFastPairModelID(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ReverseFastPairModelID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestReverseFastPairModelIDRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "12345", "0x12345678", "nothex"} {
		if _, err := ReverseFastPairModelID(in); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("ReverseFastPairModelID(%q) err = %v, want invalid argument", in, err)
		}
	}
}

func TestDecodeFastPairPrivateKey(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte{0x01, 0xab, 0xff})
	got, err := DecodeFastPairPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if got != "01abff" {
		t.Fatalf("decoded key = %q, want 01abff", got)
	}
}

func TestDecodeFastPairPrivateKeyRejectsBadBase64(t *testing.T) {
	if _, err := DecodeFastPairPrivateKey("@@@not base64@@@"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}
