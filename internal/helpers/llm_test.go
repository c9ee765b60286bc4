package helpers

import "testing"

func TestExtractJSONPlain(t *testing.T) {
	out, err := ExtractJSON(`{"a":1,"b":[2,3]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"a":1,"b":[2,3]}` {
		t.Fatalf("got %q", out)
	}
}

func TestExtractJSONFenced(t *testing.T) {
	in := "Here you go:\n```json\n{\"decisions\": [\"ship it\"]}\n```\nthanks"
	out, err := ExtractJSON(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"decisions": ["ship it"]}` {
		t.Fatalf("got %q", out)
	}
}

func TestExtractJSONByteOrderMark(t *testing.T) {
	out, err := ExtractJSON("\uFEFF{\"a\":1}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"a":1}` {
		t.Fatalf("got %q", out)
	}
}

func TestExtractJSONEmbedded(t *testing.T) {
	in := `The result is {"x": "brace } in string"} trailing`
	out, err := ExtractJSON(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"x": "brace } in string"}` {
		t.Fatalf("got %q", out)
	}
}

func TestExtractJSONNone(t *testing.T) {
	if _, err := ExtractJSON("no json here"); err == nil {
		t.Fatal("expected error")
	}
}

func TestJaccard(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"a b c", "a b c", 1},
		{"a b", "c d", 0},
		{"", "a", 0},
	}
	for _, c := range cases {
		if got := Jaccard(c.a, c.b); got != c.want {
			t.Errorf("Jaccard(%q,%q)=%v want %v", c.a, c.b, got, c.want)
		}
	}
	if got := Jaccard("a b c", "b c d"); got <= 0.4 || got >= 0.6 {
		t.Errorf("partial overlap = %v, want ~0.5", got)
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors: %v", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: %v", got)
	}
	if got := Cosine([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched lengths: %v", got)
	}
}
