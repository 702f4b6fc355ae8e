package signing

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"a":1,"b":"two"}`)
	secret := "shh"

	sig := Sign(body, secret)
	if !Verify(body, sig, secret) {
		t.Fatalf("expected signature to verify")
	}
	if !Verify(body, SignaturePrefix+sig, secret) {
		t.Fatalf("expected prefixed signature to verify")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	body := []byte(`{"a":1}`)
	secret := "shh"
	sig := Sign(body, secret)

	tests := []struct {
		name   string
		body   []byte
		secret string
		sig    string
	}{
		{"altered body", []byte(`{"a":2}`), secret, sig},
		{"altered secret", body, "other", sig},
		{"altered signature", body, secret, flipLastHexChar(sig)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Verify(tt.body, tt.sig, tt.secret) {
				t.Fatalf("expected verification to fail")
			}
		})
	}
}

func TestSignStableAcrossCalls(t *testing.T) {
	body := []byte(`{"x":1}`)
	secret := "k"
	if Sign(body, secret) != Sign(body, secret) {
		t.Fatalf("expected signature to be stable for identical inputs")
	}
}

func TestCanonicalizeSortsKeys(t *testing.T) {
	a, err := Canonicalize(map[string]interface{}{"b": 1, "a": 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(a) != `{"a":2,"b":1}` {
		t.Fatalf("expected sorted compact form, got %s", a)
	}
}

func flipLastHexChar(s string) string {
	if len(s) == 0 {
		return s
	}
	b := []byte(s)
	if b[len(b)-1] == '0' {
		b[len(b)-1] = '1'
	} else {
		b[len(b)-1] = '0'
	}
	return string(b)
}
