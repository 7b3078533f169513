package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type tokenReply struct {
	Token      string `json:"token"`
	UserExists bool   `json:"userExists"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := tokenReply{Token: "abc", UserExists: true}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"userExists":true`) {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var out tokenReply
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out != in {
		t.Fatalf("expected decoded value to match, got %#v", out)
	}

	indented, err := MarshalIndent(in, "", "  ")
	if err != nil {
		t.Fatalf("marshal indent failed: %v", err)
	}
	if !strings.Contains(string(indented), "\n  \"token\"") {
		t.Fatalf("expected indented output, got %s", string(indented))
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		``:                 true,
		`null`:             true,
		`{"isAdmin":true}`: true,
		`"token"`:          true,
		`{"isAdmin":`:      false,
		`not json`:         false,
	}
	for in, want := range cases {
		if got := Valid([]byte(in)); got != want {
			t.Errorf("Valid(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestUnmarshalEmptyPayloadAsNull(t *testing.T) {
	var out any = "keep"
	if err := Unmarshal(nil, &out); err != nil {
		t.Fatalf("unmarshal of empty payload failed: %v", err)
	}
	if out != nil {
		t.Fatalf("expected null to clear value, got %#v", out)
	}
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	payload := tokenReply{Token: "stream"}

	if err := Encode(buf, payload); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded tokenReply
	if err := Decode(buf, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != payload {
		t.Fatalf("expected decoded payload to match, got %#v", decoded)
	}
}
