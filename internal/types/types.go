package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for quota records
const DateLayout = "2006-01-02"

// QuotaRecord tracks how many questions an identity asked on a given day
type QuotaRecord struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// UserProfile is a registered user as returned by the identity resolver
type UserProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	QuotaUsed     int    `json:"quota_used"`
	LastResetDate string `json:"last_reset_date,omitempty"`
}

// Identity is the caller of a single request.
// User is nil for anonymous callers, who are tracked by IP only.
type Identity struct {
	IP   string       `json:"ip"`
	User *UserProfile `json:"user,omitempty"`
}

// Key returns the quota-table key for the identity.
// A resolved user always wins over the IP.
func (id Identity) Key() string {
	if id.User != nil && id.User.ID != "" {
		return "user:" + id.User.ID
	}
	return "ip:" + id.IP
}

// UserID returns the user id, or "" for anonymous callers
func (id Identity) UserID() string {
	if id.User == nil {
		return ""
	}
	return id.User.ID
}

// CacheEntry is the value side of the similarity cache
type CacheEntry struct {
	Vector []float64 `json:"vector"`
	Answer string    `json:"answer"`
}

// CacheHit describes a successful similarity cache lookup
type CacheHit struct {
	Question string  `json:"question"`
	Score    float64 `json:"score"`
	Answer   string  `json:"answer"`
}

// AnswerRecord is an immutable question/answer pair
type AnswerRecord struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Embedding []float64 `json:"embedding,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// FeedbackCount is populated on reads only; it is the popularity weight
	// used by the topic clusterer.
	FeedbackCount int `json:"feedback_count,omitempty"`
}

// Weight returns the popularity weight of the record (never less than 1)
func (r *AnswerRecord) Weight() int {
	if r.FeedbackCount > 0 {
		return r.FeedbackCount
	}
	return 1
}

// AnswerSource says where an answer came from
type AnswerSource string

const (
	SourceCache     AnswerSource = "cache"
	SourceGenerated AnswerSource = "generated"
)

// AnswerResult is the outcome of a single ask
type AnswerResult struct {
	Answer          string       `json:"answer"`
	Source          AnswerSource `json:"source"`
	MatchedQuestion string       `json:"matched_question,omitempty"`
	Score           float64      `json:"score,omitempty"`
}

// Topic is a cluster of similar questions
type Topic struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	QuestionCount int       `json:"question_count"`
	Samples       []string  `json:"samples"`
	Popularity    int       `json:"popularity"`
	CreatedAt     time.Time `json:"created_at"`
}

// Rating is a user's verdict on an answer
type Rating string

const (
	RatingHelpful    Rating = "helpful"
	RatingNotHelpful Rating = "not_helpful"
)

// IsValid checks if the rating value is valid
func (r Rating) IsValid() bool {
	switch r {
	case RatingHelpful, RatingNotHelpful:
		return true
	}
	return false
}

// Feedback is a rating left against a previously answered question
type Feedback struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"question_id,omitempty"`
	Question   string    `json:"question"`
	Rating     Rating    `json:"rating"`
	Note       string    `json:"note,omitempty"`
	IP         string    `json:"ip,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks if the feedback has valid field values
func (f *Feedback) Validate() error {
	if strings.TrimSpace(f.Question) == "" && f.QuestionID == "" {
		return fmt.Errorf("question or question_id is required")
	}
	if !f.Rating.IsValid() {
		return fmt.Errorf("invalid rating: %q", f.Rating)
	}
	if len(f.Note) > 2000 {
		return fmt.Errorf("note must be 2000 characters or less (got %d)", len(f.Note))
	}
	return nil
}

// LearningSummary is a periodic digest of feedback and topics
type LearningSummary struct {
	ID            string    `json:"id"`
	Summary       string    `json:"summary"`
	FeedbackCount int       `json:"feedback_count"`
	TopicCount    int       `json:"topic_count"`
	CreatedAt     time.Time `json:"created_at"`
}
