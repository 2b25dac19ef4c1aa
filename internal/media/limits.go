// Package media validates attachment references and stores uploaded assets.
package media

import (
	"fmt"
	"strings"

	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/model"
)

const mib = 1 << 20

// Limits bound the attachments of one capsule.
type Limits struct {
	MaxItems      int
	MaxImageBytes int64
	MaxVideoBytes int64
}

// DefaultLimits returns 10 items, 10 MiB images and 50 MiB videos.
func DefaultLimits() Limits {
	return Limits{MaxItems: 10, MaxImageBytes: 10 * mib, MaxVideoBytes: 50 * mib}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxItems <= 0 {
		l.MaxItems = d.MaxItems
	}
	if l.MaxImageBytes <= 0 {
		l.MaxImageBytes = d.MaxImageBytes
	}
	if l.MaxVideoBytes <= 0 {
		l.MaxVideoBytes = d.MaxVideoBytes
	}
	return l
}

// MaxBytes returns the size ceiling for t, or 0 for unknown types.
func (l Limits) MaxBytes(t model.MediaType) int64 {
	l = l.withDefaults()
	switch t {
	case model.MediaImage:
		return l.MaxImageBytes
	case model.MediaVideo:
		return l.MaxVideoBytes
	default:
		return 0
	}
}

// Validate checks count, type and size of every item and returns all problems found.
func (l Limits) Validate(items []model.MediaAttachment) []errs.FieldError {
	l = l.withDefaults()
	var problems []errs.FieldError
	if len(items) > l.MaxItems {
		problems = append(problems, errs.FieldError{
			Field:  "media",
			Reason: fmt.Sprintf("too many attachments (%d > %d)", len(items), l.MaxItems),
		})
	}
	for i, it := range items {
		field := fmt.Sprintf("media[%d]", i)
		name := displayName(it, i)
		limit := l.MaxBytes(it.Type)
		switch {
		case limit == 0:
			problems = append(problems, errs.FieldError{Field: field,
				Reason: fmt.Sprintf("%s: unsupported media type %q", name, it.Type)})
		case strings.TrimSpace(it.URL) == "":
			problems = append(problems, errs.FieldError{Field: field,
				Reason: fmt.Sprintf("%s: missing url", name)})
		case it.SizeBytes <= 0:
			problems = append(problems, errs.FieldError{Field: field,
				Reason: fmt.Sprintf("%s: size must be positive", name)})
		case it.SizeBytes > limit:
			problems = append(problems, errs.FieldError{Field: field,
				Reason: fmt.Sprintf("%s: %s exceeds %d MB limit", name, it.Type, limit/mib)})
		}
	}
	return problems
}

func displayName(it model.MediaAttachment, i int) string {
	if it.Name != "" {
		return fmt.Sprintf("%q", it.Name)
	}
	if it.URL != "" {
		return fmt.Sprintf("%q", it.URL)
	}
	return fmt.Sprintf("item %d", i)
}

// TypeOf classifies a MIME content type.
func TypeOf(contentType string) (model.MediaType, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return model.MediaImage, true
	case strings.HasPrefix(ct, "video/"):
		return model.MediaVideo, true
	default:
		return "", false
	}
}
