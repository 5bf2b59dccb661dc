package provisioning_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"axocore/internal/provisioning"
)

func TestHS256TokenSourceSignsAndVerifies(t *testing.T) {
	secret := []byte("shared-secret")
	src := provisioning.NewHS256TokenSource(secret, "alice", "a1", time.Minute)

	raw, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !tok.Valid {
		t.Fatal("expected token to be valid")
	}
	if claims["sub"] != "alice" {
		t.Fatalf("unexpected sub claim: %v", claims["sub"])
	}
	if claims["dev"] != "a1" {
		t.Fatalf("unexpected dev claim: %v", claims["dev"])
	}
}

func TestHS256TokenSourceRejectedByWrongSecret(t *testing.T) {
	src := provisioning.NewHS256TokenSource([]byte("correct"), "alice", "a1", time.Minute)
	raw, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	_, err = jwt.ParseWithClaims(raw, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		return []byte("wrong"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err == nil {
		t.Fatal("expected verification with the wrong secret to fail")
	}
}

func TestHS256TokenSourceDefaultsTTL(t *testing.T) {
	src := provisioning.NewHS256TokenSource([]byte("secret"), "alice", "a1", 0)
	raw, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte("secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"})); err != nil {
		t.Fatalf("parse: %v", err)
	}
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)
	if exp-iat != 300 {
		t.Fatalf("expected default 5 minute ttl, got %v seconds", exp-iat)
	}
}
