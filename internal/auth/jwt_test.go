package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

func TestSignParseRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")
	token, err := v.Sign("c1", models.KindCaptain, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := v.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.ActorID != "c1" || id.Kind != models.KindCaptain {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, _ := NewVerifier("secret-a").Sign("r1", models.KindRider, time.Minute)
	if _, err := NewVerifier("secret-b").Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret")
	token, _ := v.Sign("r1", models.KindRider, -time.Minute)
	if _, err := v.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsUnknownRole(t *testing.T) {
	v := NewVerifier("test-secret")
	token, _ := v.Sign("x1", models.ActorKind("admin"), time.Minute)
	if _, err := v.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
