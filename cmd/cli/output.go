package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

// printOut renders v as indented JSON or as YAML with the same keys.
func printOut(w io.Writer, format string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	switch format {
	case "json", "":
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml":
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (json, yaml)", format)
	}
}

// describeErr expands gRPC status details into readable lines.
func describeErr(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return err.Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", st.Code(), st.Message())
	for _, d := range st.Details() {
		switch d := d.(type) {
		case *errdetails.BadRequest:
			for _, v := range d.GetFieldViolations() {
				fmt.Fprintf(&sb, "\n  %s: %s", v.GetField(), v.GetDescription())
			}
		case *errdetails.RetryInfo:
			fmt.Fprintf(&sb, "\n  retry after %s", d.GetRetryDelay().AsDuration())
		}
	}
	return sb.String()
}
