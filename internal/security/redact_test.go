package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "****"},
		{"abcd", "****"},
		{"kite_api_key_1234", "****1234"},
	}
	for _, tt := range tests {
		if got := MaskCredential(tt.in); got != tt.want {
			t.Errorf("MaskCredential(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		secret  string
		keeping string
	}{
		{
			name:    "query parameter",
			in:      `Get "https://www.alphavantage.co/query?function=GLOBAL_QUOTE&symbol=TCS.BSE&apikey=DEMOKEY98765": dial tcp: timeout`,
			secret:  "DEMOKEY98765",
			keeping: "symbol=TCS.BSE",
		},
		{
			name:    "authorization header",
			in:      "Authorization: token myapikey:accesstoken42",
			secret:  "myapikey:accesstoken42",
			keeping: "Authorization: token ****en42",
		},
		{
			name:    "key value text",
			in:      "access_token=abcdef123456 rejected",
			secret:  "abcdef123456",
			keeping: "rejected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redact(tt.in)
			if strings.Contains(got, tt.secret) {
				t.Errorf("Redact leaked secret: %s", got)
			}
			if !strings.Contains(got, tt.keeping) {
				t.Errorf("Redact dropped %q: %s", tt.keeping, got)
			}
		})
	}

	plain := "no secrets in here"
	if Redact(plain) != plain {
		t.Error("Redact changed a clean string")
	}
}

func TestRedactErrorKeepsChain(t *testing.T) {
	base := fmt.Errorf("request https://x/query?apikey=SECRETVALUE1: %w", context.DeadlineExceeded)

	err := RedactError(base)
	if strings.Contains(err.Error(), "SECRETVALUE1") {
		t.Errorf("message leaked secret: %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("redacted error should unwrap to the original cause")
	}

	clean := errors.New("plain failure")
	if RedactError(clean) != clean {
		t.Error("clean error should be returned unchanged")
	}
	if RedactError(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestRedactFields(t *testing.T) {
	out := RedactFields(map[string]string{
		"api_key": "abcdefgh1234",
		"url":     "https://x/?apikey=zzzzyyyy9999",
		"symbol":  "TCS",
	})
	if out["api_key"] != "****1234" || out["symbol"] != "TCS" || strings.Contains(out["url"], "zzzzyyyy") {
		t.Errorf("RedactFields = %v", out)
	}
}
