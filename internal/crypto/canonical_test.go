package crypto

import "testing"

func TestCanonicalizeJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "keys are sorted",
			input: `{"b":1,"a":2}`,
			want:  `{"a":2,"b":1}`,
		},
		{
			name:  "whitespace is removed",
			input: "{\n  \"unit\": \"BSBWHS332X\",\n  \"count\": 3\n}",
			want:  `{"count":3,"unit":"BSBWHS332X"}`,
		},
		{
			name:  "nested objects are canonicalized",
			input: `{"outer":{"z":true,"a":false}}`,
			want:  `{"outer":{"a":false,"z":true}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeJSON([]byte(tt.input))
			if err != nil {
				t.Fatalf("CanonicalizeJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("CanonicalizeJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalizeJSONInvalidInput(t *testing.T) {
	if _, err := CanonicalizeJSON([]byte(`{"unterminated`)); err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}

func TestCanonicalizationStabilizesHash(t *testing.T) {
	a := []byte(`{"unit":"BSBWHS332X","outcome":"COMPETENT"}`)
	b := []byte("{ \"outcome\": \"COMPETENT\", \"unit\": \"BSBWHS332X\" }")

	ca, err := CanonicalizeJSON(a)
	if err != nil {
		t.Fatalf("CanonicalizeJSON() error = %v", err)
	}
	cb, err := CanonicalizeJSON(b)
	if err != nil {
		t.Fatalf("CanonicalizeJSON() error = %v", err)
	}

	if CalculateSHA256Hex(ca) != CalculateSHA256Hex(cb) {
		t.Error("equivalent documents produced different content hashes")
	}
}
