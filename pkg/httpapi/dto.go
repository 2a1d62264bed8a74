package httpapi

import (
	"time"

	"github.com/brightlane/crm-intake/pkg/intake"
)

// processRequest is the raw email payload accepted by the process endpoint.
type processRequest struct {
	From      string             `json:"from"`
	To        intake.FlexStrings `json:"to"`
	Cc        intake.FlexStrings `json:"cc,omitempty"`
	Subject   string             `json:"subject"`
	Text      string             `json:"text"`
	HTML      string             `json:"html"`
	Date      string             `json:"date"`
	MessageID string             `json:"message_id"`
	InReplyTo string             `json:"in_reply_to,omitempty"`
}

func (r processRequest) rawEmail() intake.RawEmail {
	return intake.RawEmail{
		From:      r.From,
		To:        r.To,
		Cc:        r.Cc,
		Subject:   r.Subject,
		Text:      r.Text,
		HTML:      r.HTML,
		Date:      r.Date,
		MessageID: r.MessageID,
		InReplyTo: r.InReplyTo,
	}
}

// decisionRequest is the body of the decision endpoint.
type decisionRequest struct {
	ApprovedTaskIndices []int  `json:"approved_task_indices"`
	ApprovedDealIndices []int  `json:"approved_deal_indices"`
	DecidedBy           string `json:"decided_by,omitempty"`
}

// intakeDetail is the full intake representation returned by the process,
// get, and decision endpoints.
type intakeDetail struct {
	ID                  string                      `json:"id"`
	Status              intake.Status               `json:"status"`
	SenderEmail         string                      `json:"sender_email"`
	SenderName          string                      `json:"sender_name,omitempty"`
	Subject             string                      `json:"subject"`
	Summary             string                      `json:"summary"`
	KeyPoints           []string                    `json:"key_points"`
	Intent              intake.Intent               `json:"intent"`
	Entities            []intake.Entity             `json:"entities,omitempty"`
	ConfidenceScore     float64                     `json:"confidence_score"`
	ConfidenceReasoning string                      `json:"confidence_reasoning,omitempty"`
	TaskRecommendations []intake.TaskRecommendation `json:"task_recommendations"`
	DealRecommendations []intake.DealRecommendation `json:"deal_recommendations"`
	Decision            *intake.Decision            `json:"decision,omitempty"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}

func toDetail(record *intake.Record) intakeDetail {
	detail := intakeDetail{
		ID:                  record.ID,
		Status:              record.Status,
		SenderEmail:         record.SenderEmail,
		SenderName:          record.Email.SenderName(),
		Subject:             record.Subject,
		Summary:             record.AI.Summary.Text,
		KeyPoints:           record.AI.Summary.KeyPoints,
		Intent:              record.AI.Intent,
		Entities:            record.AI.Entities,
		ConfidenceScore:     record.ConfidenceScore,
		ConfidenceReasoning: record.AI.Confidence.Reasoning,
		TaskRecommendations: record.Recommendations.Tasks,
		DealRecommendations: record.Recommendations.Deals,
		Decision:            record.Decision,
		CreatedAt:           record.CreatedAt,
		UpdatedAt:           record.UpdatedAt,
	}
	if detail.KeyPoints == nil {
		detail.KeyPoints = []string{}
	}
	if detail.TaskRecommendations == nil {
		detail.TaskRecommendations = []intake.TaskRecommendation{}
	}
	if detail.DealRecommendations == nil {
		detail.DealRecommendations = []intake.DealRecommendation{}
	}
	return detail
}

// pageResponse is the paginated pending listing.
type pageResponse struct {
	Items []intakeDetail `json:"items"`
	Total int            `json:"total"`
	Skip  int            `json:"skip"`
	Limit int            `json:"limit"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// partialDispatchResponse reports a decision that created some of the
// approved items before a collaborator failed. The record stays
// pending_review so the operator can retry the remainder.
type partialDispatchResponse struct {
	Error                string `json:"error"`
	SucceededTaskIndices []int  `json:"succeeded_task_indices"`
	SucceededDealIndices []int  `json:"succeeded_deal_indices"`
	FailedKind           string `json:"failed_kind"`
	FailedIndex          int    `json:"failed_index"`
}

// webhookAck is the minimal acknowledgement returned to webhook providers.
type webhookAck struct {
	ID     string        `json:"id"`
	Status intake.Status `json:"status"`
}
