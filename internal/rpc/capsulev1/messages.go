package capsulev1

import "time"

// Media references an uploaded attachment.
type Media struct {
	Name      string `json:"name,omitempty"`
	URL       string `json:"url"`
	Type      string `json:"type"`
	SizeBytes int64  `json:"size_bytes"`
}

// Capsule is the client-facing snapshot. Locked capsules arrive with
// Message and Media cleared and Sealed set.
type Capsule struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Title      string     `json:"title"`
	Message    string     `json:"message,omitempty"`
	OpenAt     time.Time  `json:"open_at"`
	IsPrivate  bool       `json:"is_private"`
	SendToSelf bool       `json:"send_to_self"`
	Recipients []string   `json:"recipients,omitempty"`
	Media      []Media    `json:"media,omitempty"`
	MediaCount int        `json:"media_count"`
	State      string     `json:"state"`
	OpenedAt   *time.Time `json:"opened_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Sealed     bool       `json:"sealed"`
	OpensIn    string     `json:"opens_in,omitempty"`
}

type CreateCapsuleRequest struct {
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	OpenAt     time.Time `json:"open_at"`
	IsPrivate  bool      `json:"is_private"`
	SendToSelf bool      `json:"send_to_self"`
	Recipients []string  `json:"recipients,omitempty"`
	Media      []Media   `json:"media,omitempty"`
}

type CreateCapsuleResponse struct {
	Capsule Capsule `json:"capsule"`
}

type GetCapsuleRequest struct {
	ID string `json:"id"`
}

type GetCapsuleResponse struct {
	Capsule Capsule `json:"capsule"`
}

type EvaluateCapsuleRequest struct {
	ID string `json:"id"`
}

type EvaluateCapsuleResponse struct {
	ID               string     `json:"id"`
	State            string     `json:"state"`
	OpenAt           time.Time  `json:"open_at"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	OpensIn          string     `json:"opens_in"`
	Ready            bool       `json:"ready"`
}

type OpenCapsuleRequest struct {
	ID string `json:"id"`
}

type OpenCapsuleResponse struct {
	Capsule Capsule `json:"capsule"`
}

type ListCapsulesRequest struct{}

type ListCapsulesResponse struct {
	Capsules []Capsule `json:"capsules"`
}

type UploadMediaRequest struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type UploadMediaResponse struct {
	Media Media `json:"media"`
}

type SetOwnerEmailRequest struct {
	Email string `json:"email"`
}

type SetOwnerEmailResponse struct {
	Email string `json:"email"`
}
