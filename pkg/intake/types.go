// Package intake implements the email intake pipeline: normalization of raw
// inbound email payloads, AI analysis with CRM context, the confidence-based
// review policy, and the two orchestrations that create intake records and
// apply operator decisions to them.
package intake

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the lifecycle state of an intake record.
//
//	pending_review --(user approves any)--> user_approved
//	pending_review --(user rejects all)---> rejected
//	(created directly as auto_approved when confidence clears the threshold)
//
// auto_approved, user_approved and rejected are terminal.
type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusAutoApproved  Status = "auto_approved"
	StatusUserApproved  Status = "user_approved"
	StatusRejected      Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingReview, StatusAutoApproved, StatusUserApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s permits no further workflow transitions.
func (s Status) Terminal() bool {
	return s == StatusAutoApproved || s == StatusUserApproved || s == StatusRejected
}

// FlexStrings is a []string that also unmarshals from a single JSON string.
// Webhook providers are inconsistent about whether "to" carries one recipient
// or a list; comma and semicolon separated strings are split.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		var out []string
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		*f = out
		return nil
	}
	return fmt.Errorf("FlexStrings: cannot unmarshal %s", string(data))
}

func (f FlexStrings) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(f))
}

// RawEmail is the provider-agnostic inbound payload, as received from a
// webhook parser or manual submission. It is stored verbatim on the record.
type RawEmail struct {
	From       string      `json:"from"`
	To         FlexStrings `json:"to"`
	Cc         FlexStrings `json:"cc,omitempty"`
	Subject    string      `json:"subject"`
	Text       string      `json:"text,omitempty"`
	HTML       string      `json:"html,omitempty"`
	Date       string      `json:"date,omitempty"`
	MessageID  string      `json:"message_id,omitempty"`
	InReplyTo  string      `json:"in_reply_to,omitempty"`
	References []string    `json:"references,omitempty"`
	ThreadID   string      `json:"thread_id,omitempty"`
}

// Address is an email address with an optional display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// String formats the address as "Name <addr@host>" or the bare address.
func (a Address) String() string {
	if a.Name != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Email)
	}
	return a.Email
}

// Headers holds the structured metadata of a normalized email.
type Headers struct {
	Subject    string    `json:"subject"`
	Date       time.Time `json:"date"`
	MessageID  string    `json:"message_id,omitempty"`
	ThreadID   string    `json:"thread_id,omitempty"`
	InReplyTo  string    `json:"in_reply_to,omitempty"`
	References []string  `json:"references,omitempty"`
}

// Body holds the email body in its received and cleaned forms. NormalizedText
// never contains quoted-reply blocks or trailing signatures when a plausible
// boundary was detected.
type Body struct {
	RawHTML        string `json:"raw_html,omitempty"`
	RawText        string `json:"raw_text,omitempty"`
	NormalizedText string `json:"normalized_text"`
}

// NormalizedEmail is the canonical form of an inbound email. It is created
// once by the Normalizer and immutable thereafter.
type NormalizedEmail struct {
	From       Address   `json:"from"`
	To         []Address `json:"to"`
	Cc         []Address `json:"cc,omitempty"`
	Headers    Headers   `json:"headers"`
	Body       Body      `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// IsReply reports whether the email replies to an earlier message.
func (e *NormalizedEmail) IsReply() bool {
	if strings.HasPrefix(strings.ToLower(e.Headers.Subject), "re:") {
		return true
	}
	return e.Headers.InReplyTo != "" || len(e.Headers.References) > 0
}

// ThreadID resolves the best thread identifier: the explicit header, the
// oldest reference, the replied-to id, then the message's own id.
func (e *NormalizedEmail) ThreadID() string {
	if e.Headers.ThreadID != "" {
		return e.Headers.ThreadID
	}
	if len(e.Headers.References) > 0 {
		return e.Headers.References[0]
	}
	if e.Headers.InReplyTo != "" {
		return e.Headers.InReplyTo
	}
	return e.Headers.MessageID
}

// SenderName returns the sender's display name, deriving one from the
// address local part when the header carried none.
func (e *NormalizedEmail) SenderName() string {
	if e.From.Name != "" {
		return e.From.Name
	}
	local := e.From.Email
	if at := strings.Index(local, "@"); at > 0 {
		local = local[:at]
	}
	local = strings.NewReplacer(".", " ", "_", " ").Replace(local)
	return cases.Title(language.English).String(local)
}

// Intent is the closed classification set for an inbound email.
type Intent string

const (
	IntentInquiry   Intent = "inquiry"
	IntentComplaint Intent = "complaint"
	IntentRequest   Intent = "request"
	IntentFollowUp  Intent = "follow_up"
	IntentOther     Intent = "other"
)

// ParseIntent maps a provider string to a known Intent, defaulting to other.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentInquiry:
		return IntentInquiry
	case IntentComplaint:
		return IntentComplaint
	case IntentRequest:
		return IntentRequest
	case IntentFollowUp:
		return IntentFollowUp
	default:
		return IntentOther
	}
}

// EntityType classifies an extracted entity.
type EntityType string

const (
	EntityPerson       EntityType = "PERSON"
	EntityDate         EntityType = "DATE"
	EntityMoney        EntityType = "MONEY"
	EntityOrganization EntityType = "ORGANIZATION"
)

// Entity is a single extracted entity with its own confidence.
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
}

// Summary is the AI-generated summary of an email.
type Summary struct {
	Text      string   `json:"text"`
	KeyPoints []string `json:"key_points"`
}

// Confidence is the AI's overall confidence in its analysis, with reasoning.
type Confidence struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// AIResult is the structured outcome of the AI analysis. Produced once by the
// engine and immutable.
type AIResult struct {
	Summary    Summary    `json:"summary"`
	Intent     Intent     `json:"intent"`
	Entities   []Entity   `json:"entities"`
	Confidence Confidence `json:"confidence"`
}

// HighConfidenceEntities returns entities at or above the threshold.
func (r *AIResult) HighConfidenceEntities(threshold float64) []Entity {
	var out []Entity
	for _, e := range r.Entities {
		if e.Confidence >= threshold {
			out = append(out, e)
		}
	}
	return out
}

// TaskRecommendation is an AI-suggested task, referenced by its index in the
// recommendation list until approved.
type TaskRecommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date,omitempty"`
}

// DealRecommendation is an AI-suggested deal/pipeline entry.
type DealRecommendation struct {
	ContactEmail string  `json:"contact_email"`
	Stage        string  `json:"stage"`
	Value        float64 `json:"value"`
	Notes        string  `json:"notes"`
}

// Recommendations groups the AI-suggested tasks and deals.
type Recommendations struct {
	Tasks []TaskRecommendation `json:"tasks"`
	Deals []DealRecommendation `json:"deals"`
}

// Total returns the combined recommendation count.
func (r Recommendations) Total() int {
	return len(r.Tasks) + len(r.Deals)
}

// Decision records an operator's ruling on the recommendations of a pending
// intake. It is written at most once per record.
type Decision struct {
	ApprovedTaskIndices []int     `json:"approved_task_indices"`
	ApprovedDealIndices []int     `json:"approved_deal_indices"`
	CreatedTaskIDs      []string  `json:"created_task_ids,omitempty"`
	CreatedDealIDs      []string  `json:"created_deal_ids,omitempty"`
	DecidedBy           string    `json:"decided_by,omitempty"`
	DecidedAt           time.Time `json:"decided_at"`
}

// HasApprovals reports whether the decision approved at least one item.
func (d *Decision) HasApprovals() bool {
	return len(d.ApprovedTaskIndices) > 0 || len(d.ApprovedDealIndices) > 0
}

// Record is the aggregate root of one inbound email's processing, from raw
// payload through AI analysis to a final decision. The workflow that creates
// a Record is its sole writer until a decision updates it.
type Record struct {
	ID string `json:"id"`

	RawEmail        RawEmail        `json:"raw_email"`
	Email           NormalizedEmail `json:"email"`
	AI              AIResult        `json:"ai_result"`
	Recommendations Recommendations `json:"recommendations"`

	Status   Status    `json:"status"`
	Decision *Decision `json:"decision,omitempty"`

	// Denormalized for filtering; kept in sync with the nested objects.
	SenderEmail     string  `json:"sender_email"`
	Subject         string  `json:"subject"`
	ConfidenceScore float64 `json:"confidence_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Decided reports whether an operator decision has been recorded.
func (r *Record) Decided() bool {
	return r.Decision != nil
}
