package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_Timeout(t *testing.T) {
	for _, allowPrivate := range []bool{false, true} {
		client := NewOutboundGuard(allowPrivate).NewClient(5 * time.Second)
		if client == nil {
			t.Fatal("NewClient() returned nil")
		}
		if client.Timeout != 5*time.Second {
			t.Errorf("allowPrivate=%v: timeout = %v, want 5s", allowPrivate, client.Timeout)
		}
	}
}

// TestNewClient_GuardedHasCustomTransport はsafeurlのTransportが設定されていることをテストする。
func TestNewClient_GuardedHasCustomTransport(t *testing.T) {
	client := NewOutboundGuard(false).NewClient(5 * time.Second)

	if client.Transport == nil {
		t.Fatal("expected custom Transport to be set, got nil")
	}
	if client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport, got http.DefaultTransport")
	}
}

// httptestサーバーは127.0.0.1で起動されるため、ガード付きクライアントではブロックされる。
func TestNewClient_BlocksLoopbackUnlessAllowed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if _, err := NewOutboundGuard(false).NewClient(5 * time.Second).Get(ts.URL); err == nil {
		t.Error("expected error for loopback request with guarded client")
	}

	resp, err := NewOutboundGuard(true).NewClient(5 * time.Second).Get(ts.URL)
	if err != nil {
		t.Fatalf("expected loopback request to succeed when private network allowed: %v", err)
	}
	resp.Body.Close()
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		allowPrivate bool
		wantErr      bool
	}{
		{"public https", "https://abc123.execute-api.us-east-1.amazonaws.com/prod/chat", false, false},
		{"public supabase", "https://project.supabase.co", false, false},
		{"empty", "", false, true},
		{"no scheme", "not-a-url", false, true},
		{"ftp", "ftp://example.com/chat", false, true},
		{"private ip", "http://10.0.0.5/chat", false, true},
		{"loopback", "http://127.0.0.1:9000/chat", false, true},
		{"metadata ip", "http://169.254.169.254/latest/meta-data", false, true},
		{"ipv6 loopback", "http://[::1]/chat", false, true},
		{"localhost", "http://localhost:9000/chat", false, true},
		{"localhost allowed", "http://localhost:9000/chat", true, false},
		{"private ip allowed", "http://10.0.0.5/chat", true, false},
		{"scheme still checked when allowed", "file:///etc/passwd", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewOutboundGuard(tt.allowPrivate).ValidateEndpoint(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEndpoint(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
