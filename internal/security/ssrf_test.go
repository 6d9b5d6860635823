package security

import (
	"errors"
	"net"
	"testing"

	"venturedesk/internal/domain"
)

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.1.2.3", "172.16.0.1", "192.168.1.1", "127.0.0.1", "169.254.10.10", "::1", "fc00::1"}
	for _, s := range private {
		if !IsPrivateIP(net.ParseIP(s)) {
			t.Errorf("IsPrivateIP(%s) = false, want true", s)
		}
	}

	public := []string{"8.8.8.8", "1.1.1.1", "93.184.216.34", "2607:f8b0::1"}
	for _, s := range public {
		if IsPrivateIP(net.ParseIP(s)) {
			t.Errorf("IsPrivateIP(%s) = true, want false", s)
		}
	}
}

func TestValidateURLScheme(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/file", "file:///etc/passwd", "example.com"} {
		err := ValidateURL(raw)
		if err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", raw)
			continue
		}
		if !errors.Is(err, domain.ErrSSRFBlocked) {
			t.Errorf("ValidateURL(%q) error = %v, want ErrSSRFBlocked", raw, err)
		}
	}
}

func TestValidateURLPrivateIP(t *testing.T) {
	for _, raw := range []string{"http://127.0.0.1/admin", "http://192.168.0.10:8080/", "http://[::1]/"} {
		if err := ValidateURL(raw); !errors.Is(err, domain.ErrSSRFBlocked) {
			t.Errorf("ValidateURL(%q) error = %v, want ErrSSRFBlocked", raw, err)
		}
	}
}
