package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}

	var empty Metadata
	if cloned := empty.Clone(); cloned == nil || len(cloned) != 0 {
		t.Fatalf("expected empty non-nil clone, got %#v", cloned)
	}
}

func TestWithAndWithAll(t *testing.T) {
	base := Metadata{"foo": "bar"}
	enriched := base.With("baz", "qux")
	if _, ok := base["baz"]; ok {
		t.Fatalf("expected base map to remain unchanged")
	}

	merged := enriched.WithAll(Metadata{"foo": "override", "alpha": "beta"})
	if merged["alpha"] != "beta" || merged["baz"] != "qux" {
		t.Fatalf("unexpected merge result: %#v", merged)
	}
	if merged["foo"] != "override" {
		t.Fatalf("expected entries to win on conflict, got %q", merged["foo"])
	}
}

func TestCorrelationIDHelpers(t *testing.T) {
	md := Metadata{}.WithCorrelationID("01HZX")
	if id, ok := md.CorrelationID(); !ok || id != "01HZX" {
		t.Fatalf("expected correlation id, got %q (present=%v)", id, ok)
	}
	if md[CorrelationIDKey] != "01HZX" {
		t.Fatalf("expected header %q to carry id", CorrelationIDKey)
	}

	if _, ok := (Metadata{CorrelationIDKey: ""}).CorrelationID(); ok {
		t.Fatal("empty correlation id must be reported as missing")
	}
	if got := (Metadata{"a": "1"}).WithCorrelationID(""); len(got) != 1 {
		t.Fatalf("expected empty id to leave headers untouched, got %#v", got)
	}
}

func TestNewPairs(t *testing.T) {
	md := New("key", "value", "dangling")
	if md["key"] != "value" {
		t.Fatalf("expected key to be set")
	}
	if _, ok := md["dangling"]; ok {
		t.Fatalf("expected dangling key to be ignored")
	}
}

func TestWatermillConversion(t *testing.T) {
	md := Metadata{"source": "api"}
	wm := ToWatermill(md)
	wm["source"] = "mutation"
	if md["source"] != "api" {
		t.Fatalf("expected original metadata to be immutable to watermill changes")
	}
	if len(ToWatermill(nil)) != 0 || len(FromWatermill(nil)) != 0 {
		t.Fatal("expected nil input to produce empty metadata")
	}

	msg := message.NewMessage("uuid", nil)
	if _, ok := CorrelationIDOf(msg); ok {
		t.Fatal("expected message without header to report missing id")
	}
	msg.Metadata.Set(CorrelationIDKey, "abc")
	if id, ok := CorrelationIDOf(msg); !ok || id != "abc" {
		t.Fatalf("expected id abc, got %q", id)
	}
	if _, ok := CorrelationIDOf(nil); ok {
		t.Fatal("nil message must not report an id")
	}
}
