package auth

import (
	"errors"
	"testing"
	"time"
)

func TestOwnerTokenRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	token, err := SignOwnerToken("SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7", secret, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	owner, err := ParseOwnerToken(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if owner != "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7" {
		t.Fatalf("unexpected owner %q", owner)
	}
}

func TestOwnerTokenRejections(t *testing.T) {
	secret := []byte("s3cret")
	valid, err := SignOwnerToken("alice", secret, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseOwnerToken(valid, []byte("other")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	if _, err := ParseOwnerToken("not.a.token", secret); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}

	expired, err := SignOwnerToken("alice", secret, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseOwnerToken(expired, secret); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	if _, err := SignOwnerToken(" ", secret, time.Minute); err == nil {
		t.Fatal("expected error for empty owner")
	}
}
