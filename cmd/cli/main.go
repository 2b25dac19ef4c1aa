// Command capsulectl is a CLI client for the time capsule service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	pb "github.com/and161185/time-capsule/internal/rpc/capsulev1"
	grpcserver "github.com/and161185/time-capsule/internal/server/grpc"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd(dialGRPC, time.Now).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describeErr(err))
		os.Exit(1)
	}
}

type app struct {
	conn    connFlags
	output  string
	timeout time.Duration
	dial    dialer
	now     func() time.Time
}

// call dials with the saved token and runs fn under the command timeout.
func (a *app) call(cmd *cobra.Command, fn func(ctx context.Context, cl pb.CapsuleServiceClient) (any, error)) error {
	tok, err := loadToken(a.now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()
	cl, closer, err := a.dial(ctx, a.conn, tok)
	if err != nil {
		return err
	}
	defer closer.Close()
	out, err := fn(ctx, cl)
	if err != nil {
		return err
	}
	return printOut(cmd.OutOrStdout(), a.output, out)
}

func newRootCmd(d dialer, now func() time.Time) *cobra.Command {
	a := &app{dial: d, now: now}
	root := &cobra.Command{
		Use:           "capsulectl",
		Short:         "Create, inspect and open time capsules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.conn.addr, "addr", "localhost:8443", "server address")
	pf.StringVar(&a.conn.caPath, "cacert", "", "CA certificate (PEM)")
	pf.BoolVar(&a.conn.skipVerify, "insecure", false, "skip TLS certificate verification (dev)")
	pf.BoolVar(&a.conn.plaintext, "plaintext", false, "connect without TLS")
	pf.StringVarP(&a.output, "output", "o", "json", "output format: json or yaml")
	pf.DurationVar(&a.timeout, "timeout", 2*time.Minute, "per-command timeout")

	root.AddCommand(
		versionCmd(),
		loginCmd(a),
		createCmd(a),
		idCmd(a, "get", "Show a capsule; content stays sealed until it opens",
			func(ctx context.Context, cl pb.CapsuleServiceClient, id string) (any, error) {
				return cl.GetCapsule(ctx, &pb.GetCapsuleRequest{ID: id})
			}),
		idCmd(a, "evaluate", "Show the time left until a capsule can be opened",
			func(ctx context.Context, cl pb.CapsuleServiceClient, id string) (any, error) {
				return cl.EvaluateCapsule(ctx, &pb.EvaluateCapsuleRequest{ID: id})
			}),
		idCmd(a, "open", "Open an eligible capsule",
			func(ctx context.Context, cl pb.CapsuleServiceClient, id string) (any, error) {
				return cl.OpenCapsule(ctx, &pb.OpenCapsuleRequest{ID: id})
			}),
		listCmd(a),
		uploadCmd(a),
		setEmailCmd(a),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "capsulectl %s (%s)\n", version, buildDate)
		},
	}
}

// loginCmd mints a token from the shared signing key. Deployments with an
// identity provider save its token with --token instead.
func loginCmd(a *app) *cobra.Command {
	var (
		owner, key, token string
		ttl               time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save an access token for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := a.now()
			exp := now.Add(ttl)
			if token == "" {
				if key == "" {
					key = os.Getenv("CAPSULE_AUTH_JWT_KEY")
				}
				if key == "" {
					return errors.New("either --token or --jwt-key is required")
				}
				id, err := ownerID(owner)
				if err != nil {
					return err
				}
				if token, err = grpcserver.IssueToken([]byte(key), id, now, ttl); err != nil {
					return err
				}
				owner = id.String()
			}
			if err := saveToken(token, exp); err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), a.output, map[string]any{"owner_id": owner, "expires_at": exp.UTC()})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner UUID (generated when empty)")
	cmd.Flags().StringVar(&key, "jwt-key", "", "HS256 signing key (default $CAPSULE_AUTH_JWT_KEY)")
	cmd.Flags().StringVar(&token, "token", "", "existing bearer token to save")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func ownerID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.NewV4()
	}
	id, err := uuid.FromString(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad --owner: %w", err)
	}
	return id, nil
}

func createCmd(a *app) *cobra.Command {
	var (
		req         pb.CreateCapsuleRequest
		messageFile string
		openAt      string
		in          time.Duration
		attachments []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Seal a new capsule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := parseOpenAt(openAt, in, a.now())
			if err != nil {
				return err
			}
			req.OpenAt = at
			if messageFile != "" {
				b, err := readAll(cmd.InOrStdin(), messageFile)
				if err != nil {
					return err
				}
				req.Message = string(b)
			}
			return a.call(cmd, func(ctx context.Context, cl pb.CapsuleServiceClient) (any, error) {
				for _, p := range attachments {
					m, err := upload(ctx, cl, p)
					if err != nil {
						return nil, fmt.Errorf("upload %s: %w", p, err)
					}
					req.Media = append(req.Media, m)
				}
				return cl.CreateCapsule(ctx, &req)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Title, "title", "", "capsule title")
	f.StringVarP(&req.Message, "message", "m", "", "message text")
	f.StringVar(&messageFile, "message-file", "", "read the message from a file (- for stdin)")
	f.StringVar(&openAt, "open-at", "", "open time, RFC 3339")
	f.DurationVar(&in, "in", 0, "open after this duration instead of --open-at")
	f.StringSliceVar(&req.Recipients, "to", nil, "recipient email (repeatable)")
	f.BoolVar(&req.IsPrivate, "private", false, "private capsule without recipients")
	f.BoolVar(&req.SendToSelf, "self", false, "also notify the owner")
	f.StringSliceVar(&attachments, "attach", nil, "upload and attach an image or video (repeatable)")
	return cmd
}

func parseOpenAt(at string, in time.Duration, now time.Time) (time.Time, error) {
	switch {
	case at != "" && in != 0:
		return time.Time{}, errors.New("use either --open-at or --in")
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad --open-at: %w", err)
		}
		return t, nil
	case in > 0:
		return now.Add(in), nil
	default:
		return time.Time{}, errors.New("--open-at or a positive --in is required")
	}
}

func idCmd(a *app, use, short string, fn func(context.Context, pb.CapsuleServiceClient, string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, func(ctx context.Context, cl pb.CapsuleServiceClient) (any, error) {
				return fn(ctx, cl, args[0])
			})
		},
	}
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your capsules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.call(cmd, func(ctx context.Context, cl pb.CapsuleServiceClient) (any, error) {
				return cl.ListCapsules(ctx, &pb.ListCapsulesRequest{})
			})
		},
	}
}

func uploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image or video and print its reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, func(ctx context.Context, cl pb.CapsuleServiceClient) (any, error) {
				return upload(ctx, cl, args[0])
			})
		},
	}
}

func setEmailCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-email <address>",
		Short: "Set the address used for send-to-self notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, func(ctx context.Context, cl pb.CapsuleServiceClient) (any, error) {
				return cl.SetOwnerEmail(ctx, &pb.SetOwnerEmailRequest{Email: args[0]})
			})
		},
	}
}

func upload(ctx context.Context, cl pb.CapsuleServiceClient, path string) (pb.Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pb.Media{}, err
	}
	resp, err := cl.UploadMedia(ctx, &pb.UploadMediaRequest{
		Name:        filepath.Base(path),
		ContentType: contentType(path, data),
		Data:        data,
	})
	if err != nil {
		return pb.Media{}, err
	}
	return resp.Media, nil
}

func contentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

func readAll(stdin io.Reader, p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(p)
}
