package service

import (
	"errors"
	"testing"
	"time"

	"genui-relay/internal/domain"
)

func TestJWTServicePairRoundtrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Minute, time.Hour)
	user := domain.User{ID: "u1", Email: "ana@example.com", DisplayName: "Ana"}

	pair, err := svc.GeneratePair(user)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.ExpiresIn != 60 {
		t.Fatalf("unexpected pair: %+v", pair)
	}

	claims, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "ana@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// El refresh token no sirve como access token.
	if _, err := svc.ParseAccessToken(pair.RefreshToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid, got %v", err)
	}
}

func TestJWTServiceRefreshRotation(t *testing.T) {
	svc := NewJWTService("test-secret", time.Minute, time.Hour)
	user := domain.User{ID: "u1", Email: "ana@example.com"}

	pair, err := svc.GeneratePair(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	next, err := svc.RefreshPair(pair.RefreshToken)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if next.AccessToken == "" || next.RefreshToken == pair.RefreshToken {
		t.Fatalf("expected a rotated pair")
	}

	// El refresh usado quedó revocado.
	if _, err := svc.RefreshPair(pair.RefreshToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid after rotation, got %v", err)
	}
}

func TestJWTServiceRevokeRefresh(t *testing.T) {
	svc := NewJWTService("test-secret", time.Minute, time.Hour)
	pair, err := svc.GeneratePair(domain.User{ID: "u1", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if err := svc.RevokeRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := svc.RefreshPair(pair.RefreshToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid after revoke, got %v", err)
	}
}

func TestJWTServiceRejectsForeignTokens(t *testing.T) {
	svc := NewJWTService("test-secret", time.Minute, time.Hour)
	other := NewJWTService("other-secret", time.Minute, time.Hour)

	pair, err := other.GeneratePair(domain.User{ID: "u1", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ParseAccessToken(pair.AccessToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for foreign signature, got %v", err)
	}
	if _, err := svc.ParseAccessToken("not-a-token"); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for garbage, got %v", err)
	}
}

func TestJWTServiceExpiredToken(t *testing.T) {
	svc := NewJWTService("test-secret", -time.Minute, time.Hour)
	// TTL negativo cae al default del constructor, así que firmamos a
	// mano un par con accessTTL mínimo usando un servicio ad hoc.
	svc.accessTTL = -time.Minute

	pair, err := svc.GeneratePair(domain.User{ID: "u1", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ParseAccessToken(pair.AccessToken); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("expected ErrJWTExpired, got %v", err)
	}
}
