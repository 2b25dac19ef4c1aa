package grpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	pb "github.com/and161185/time-capsule/internal/rpc/capsulev1"
)

func makeJWT(t *testing.T, sub string, key []byte, method jwt.SigningMethod, iat time.Time, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func ctxWithAuth(token string) context.Context {
	md := metadata.New(map[string]string{
		"authorization": "Bearer " + token,
	})
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestWithOwnerID_And_OwnerIDFromCtx(t *testing.T) {
	t.Parallel()

	if id, ok := OwnerIDFromCtx(context.Background()); ok || id != uuid.Nil {
		t.Fatalf("expected no owner id in empty ctx")
	}

	want := uuid.Must(uuid.NewV4())
	got, ok := OwnerIDFromCtx(WithOwnerID(context.Background(), want))
	if !ok || got != want {
		t.Fatalf("mismatch: got %s (%v), want %s", got, ok, want)
	}

	bad := context.WithValue(context.Background(), ownerIDKey, "not-uuid")
	if id, ok := OwnerIDFromCtx(bad); ok || id != uuid.Nil {
		t.Fatalf("expected miss on wrong typed value")
	}
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "bEaReR abc.def.ghi"))
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on empty token")
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error on no metadata")
	}
}

func TestAuthenticator_ownerIDFromMD(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	a := NewAuthenticator(key, 0)
	sub := uuid.Must(uuid.NewV4())
	now := time.Now().UTC()

	cases := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid", makeJWT(t, sub.String(), key, jwt.SigningMethodHS256, now.Add(-time.Minute), 10*time.Minute), true},
		{"expired", makeJWT(t, sub.String(), key, jwt.SigningMethodHS256, now.Add(-2*time.Hour), -time.Hour), false},
		{"bad subject", makeJWT(t, "not-a-uuid", key, jwt.SigningMethodHS256, now, time.Hour), false},
		{"nil subject", makeJWT(t, uuid.Nil.String(), key, jwt.SigningMethodHS256, now, time.Hour), false},
		{"wrong alg", makeJWT(t, sub.String(), key, jwt.SigningMethodHS384, now, time.Hour), false},
		{"wrong key", makeJWT(t, sub.String(), []byte("other"), jwt.SigningMethodHS256, now, time.Hour), false},
		{"garbage", "this-is-not-a-jwt", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			id, err := a.ownerIDFromMD(ctxWithAuth(tc.token))
			if tc.ok {
				if err != nil || id != sub {
					t.Fatalf("want %s, got %s err=%v", sub, id, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("want error, got %s", id)
			}
		})
	}
}

func TestAuthenticator_Unary(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	ic := NewAuthenticator(key, time.Second).Unary()
	owner := uuid.Must(uuid.NewV4())

	var seen uuid.UUID
	h := func(ctx context.Context, _ any) (any, error) {
		seen, _ = OwnerIDFromCtx(ctx)
		return "ok", nil
	}

	health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	if _, err := ic(context.Background(), nil, health, h); err != nil {
		t.Fatalf("health must pass without auth: %v", err)
	}

	info := &grpc.UnaryServerInfo{FullMethod: pb.GetCapsuleMethod}
	_, err := ic(context.Background(), nil, info, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}

	tok, err := IssueToken(key, owner, time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := ic(ctxWithAuth(tok), nil, info, h); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if seen != owner {
		t.Fatalf("owner not propagated: %s", seen)
	}
}

func TestIssueToken_UsesGivenClock(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	owner := uuid.Must(uuid.NewV4())
	issued := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tok, err := IssueToken(key, owner, issued, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	var claims jwt.RegisteredClaims
	if _, err := jwt.NewParser(jwt.WithoutClaimsValidation()).ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !claims.IssuedAt.Equal(issued) || !claims.ExpiresAt.Equal(issued.Add(time.Hour)) {
		t.Fatalf("iat=%v exp=%v", claims.IssuedAt, claims.ExpiresAt)
	}

	stale, err := IssueToken(key, owner, time.Now().Add(-2*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := NewAuthenticator(key, 0).ownerIDFromMD(ctxWithAuth(stale)); err == nil {
		t.Fatalf("token expired by its issue clock must be rejected")
	}
}
