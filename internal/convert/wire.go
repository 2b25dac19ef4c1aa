// Package convert maps domain capsules to and from capsule.v1 wire messages.
package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/time-capsule/internal/countdown"
	"github.com/and161185/time-capsule/internal/model"
	pb "github.com/and161185/time-capsule/internal/rpc/capsulev1"
)

// ParseID parses a capsule id coming from the wire.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.FromString(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

// --- media ---

func ToWireMedia(m model.MediaAttachment) pb.Media {
	return pb.Media{Name: m.Name, URL: m.URL, Type: string(m.Type), SizeBytes: m.SizeBytes}
}

func FromWireMedia(in []pb.Media) []model.MediaAttachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.MediaAttachment, 0, len(in))
	for _, m := range in {
		out = append(out, model.MediaAttachment{
			Name:      m.Name,
			URL:       m.URL,
			Type:      model.MediaType(strings.ToLower(strings.TrimSpace(m.Type))),
			SizeBytes: m.SizeBytes,
		})
	}
	return out
}

// --- create (client -> server) ---

// FromCreateRequest builds a draft owned by owner.
func FromCreateRequest(owner uuid.UUID, in *pb.CreateCapsuleRequest) model.Draft {
	if in == nil {
		return model.Draft{OwnerID: owner}
	}
	return model.Draft{
		OwnerID:    owner,
		Title:      in.Title,
		Message:    in.Message,
		OpenAt:     in.OpenAt,
		IsPrivate:  in.IsPrivate,
		SendToSelf: in.SendToSelf,
		Recipients: in.Recipients,
		Media:      FromWireMedia(in.Media),
	}
}

// --- capsule (server -> client) ---

// ToWireCapsule renders c as seen at now. A locked capsule keeps its
// message and media sealed; only the attachment count is exposed.
func ToWireCapsule(c *model.Capsule, now time.Time) pb.Capsule {
	if c == nil {
		return pb.Capsule{}
	}
	out := pb.Capsule{
		ID:         c.ID.String(),
		OwnerID:    c.OwnerID.String(),
		Title:      c.Title,
		OpenAt:     c.OpenAt.UTC(),
		IsPrivate:  c.IsPrivate,
		SendToSelf: c.SendToSelf,
		Recipients: append([]string(nil), c.Recipients...),
		MediaCount: len(c.Media),
		State:      string(c.State),
		CreatedAt:  c.CreatedAt.UTC(),
	}
	if !c.IsOpen() {
		out.Sealed = true
		out.OpensIn = countdown.Humanize(c.OpenAt.Sub(now))
		return out
	}
	out.Message = c.Message
	if c.OpenedAt != nil {
		t := c.OpenedAt.UTC()
		out.OpenedAt = &t
	}
	for _, m := range c.Media {
		out.Media = append(out.Media, ToWireMedia(m))
	}
	return out
}

// ToWireCapsules renders a list with ToWireCapsule.
func ToWireCapsules(list []model.Capsule, now time.Time) []pb.Capsule {
	out := make([]pb.Capsule, 0, len(list))
	for i := range list {
		out = append(out, ToWireCapsule(&list[i], now))
	}
	return out
}

// ToWireEvaluation flattens an evaluation.
func ToWireEvaluation(e model.Evaluation) *pb.EvaluateCapsuleResponse {
	out := &pb.EvaluateCapsuleResponse{
		ID:               e.CapsuleID.String(),
		State:            string(e.State),
		OpenAt:           e.OpenAt.UTC(),
		RemainingSeconds: int64(e.Remaining / time.Second),
		OpensIn:          countdown.Humanize(e.Remaining),
		Ready:            e.Ready(),
	}
	if e.OpenedAt != nil {
		t := e.OpenedAt.UTC()
		out.OpenedAt = &t
	}
	return out
}
