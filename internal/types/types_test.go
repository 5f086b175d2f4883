package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name     string
		identity Identity
		expected string
	}{
		{"anonymous", Identity{IP: "1.2.3.4"}, "ip:1.2.3.4"},
		{"user wins over ip", Identity{IP: "1.2.3.4", User: &UserProfile{ID: "u1"}}, "user:u1"},
		{"user without id falls back to ip", Identity{IP: "1.2.3.4", User: &UserProfile{}}, "ip:1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.identity.Key())
		})
	}
}

func TestAnswerRecordWeight(t *testing.T) {
	assert.Equal(t, 1, (&AnswerRecord{}).Weight())
	assert.Equal(t, 1, (&AnswerRecord{FeedbackCount: -2}).Weight())
	assert.Equal(t, 4, (&AnswerRecord{FeedbackCount: 4}).Weight())
}

func TestFeedbackValidate(t *testing.T) {
	tests := []struct {
		name    string
		fb      Feedback
		wantErr bool
	}{
		{"valid helpful", Feedback{Question: "what is urea", Rating: RatingHelpful}, false},
		{"valid by id", Feedback{QuestionID: "q1", Rating: RatingNotHelpful}, false},
		{"missing question", Feedback{Rating: RatingHelpful}, true},
		{"bad rating", Feedback{Question: "q", Rating: "meh"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fb.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	base := errors.New("disk full")

	pe := fmt.Errorf("saving: %w", &PersistenceError{Op: "append answer", Err: base})
	assert.True(t, IsPersistenceError(pe))
	assert.ErrorIs(t, pe, base)

	ge := &GenerationError{Question: "how do I water rice", Err: base}
	assert.ErrorIs(t, ge, base)
	assert.Contains(t, ge.Error(), "how do I water rice")

	wrapped := fmt.Errorf("ip:1.2.3.4 used 3/3: %w", ErrQuotaExceeded)
	assert.ErrorIs(t, wrapped, ErrQuotaExceeded)
	assert.False(t, IsPersistenceError(wrapped))
}
