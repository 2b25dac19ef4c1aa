package grpcserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	pb "github.com/and161185/time-capsule/internal/rpc/capsulev1"
)

type ctxKey string

const ownerIDKey ctxKey = "tc.ownerID"

// WithOwnerID stores the authenticated owner ID in context.
func WithOwnerID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerIDKey, id)
}

// OwnerIDFromCtx fetches the owner ID from context.
func OwnerIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(ownerIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Authenticator verifies HS256 bearer tokens whose subject is the owner UUID.
type Authenticator struct {
	key    []byte
	leeway time.Duration
}

// NewAuthenticator constructs an Authenticator; leeway <= 0 selects 30s.
func NewAuthenticator(key []byte, leeway time.Duration) *Authenticator {
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	return &Authenticator{key: key, leeway: leeway}
}

// Unary authenticates every capsule.v1 call. Health and reflection pass through.
func (a *Authenticator) Unary() grpc.UnaryServerInterceptor {
	prefix := "/" + pb.ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return next(ctx, req)
		}
		id, err := a.ownerIDFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return next(WithOwnerID(ctx, id), req)
	}
}

// ownerIDFromMD: extract "authorization: Bearer <JWT>", verify HS256, return sub as UUID.
func (a *Authenticator) ownerIDFromMD(ctx context.Context) (uuid.UUID, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.key, nil
	}, jwt.WithLeeway(a.leeway))
	if err != nil || !parsed.Valid {
		return uuid.Nil, errors.New("invalid token")
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errors.New("bad subject")
	}
	return id, nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

// IssueToken signs an HS256 token for owner valid from now for ttl. Used by tooling and tests.
func IssueToken(key []byte, owner uuid.UUID, now time.Time, ttl time.Duration) (string, error) {
	now = now.UTC()
	claims := jwt.RegisteredClaims{
		Subject:   owner.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
