package server

import (
	"testing"
)

func TestNewUpstreamClientHasNoOverallTimeout(t *testing.T) {
	client := NewUpstreamClient()
	if client.Timeout != 0 {
		t.Fatalf("expected no Client.Timeout (fetch owns its own deadline), got %s", client.Timeout)
	}
	if client.Transport == nil {
		t.Fatalf("expected a configured transport")
	}
}
