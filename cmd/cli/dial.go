package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/and161185/time-capsule/internal/rpc/capsulev1"
)

// connFlags are the global connection settings.
type connFlags struct {
	addr       string
	caPath     string
	skipVerify bool
	plaintext  bool
}

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // dev only
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// dialer opens a client; tests substitute their own.
type dialer func(ctx context.Context, f connFlags, bearer string) (pb.CapsuleServiceClient, io.Closer, error)

func dialGRPC(_ context.Context, f connFlags, bearer string) (pb.CapsuleServiceClient, io.Closer, error) {
	creds := insecure.NewCredentials()
	if !f.plaintext {
		var err error
		if creds, err = loadTLS(f.caPath, f.skipVerify); err != nil {
			return nil, nil, err
		}
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !f.plaintext}))
	}
	cc, err := grpc.NewClient(f.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return pb.NewCapsuleServiceClient(cc), cc, nil
}
