package storage

import (
	"time"

	"github.com/goodtune/socialtracker/internal/platform"
)

// DateLayout is the calendar date format used for activity dates.
const DateLayout = "2006-01-02"

// DateKey returns the calendar date of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// Activity is one continuous visit to a platform.
// EndTime is nil while the activity is open.
type Activity struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Platform  platform.Platform `json:"platform"`
	StartTime time.Time         `json:"startTime"`
	EndTime   *time.Time        `json:"endTime,omitempty"`
	Duration  int               `json:"duration"`
	URL       string            `json:"url,omitempty"`
	Date      string            `json:"date"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Open reports whether the activity has not been closed yet.
func (a *Activity) Open() bool {
	return a.EndTime == nil
}

// NotificationSettings controls which channels a user receives limit alerts on.
type NotificationSettings struct {
	Email   bool `json:"email"`
	Browser bool `json:"browser"`
}

// Preferences holds free-form user preferences.
type Preferences struct {
	StudySchedule        map[string]string `json:"studySchedule,omitempty"`
	Reminders            bool              `json:"reminders"`
	MotivationalMessages bool              `json:"motivationalMessages"`
}

// User is a tracked user's profile.
type User struct {
	ID            string                    `json:"id"`
	Name          string                    `json:"name,omitempty"`
	Email         string                    `json:"email,omitempty"`
	Limits        map[platform.Platform]int `json:"limits"`
	Notifications NotificationSettings      `json:"notifications"`
	Preferences   Preferences               `json:"preferences"`
	CreatedAt     time.Time                 `json:"createdAt"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
}

// NotificationLimitExceeded is the type of a daily limit crossing notification.
const NotificationLimitExceeded = "limit_exceeded"

// Notification records a daily limit crossing.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      string            `json:"type"`
	Platform  platform.Platform `json:"platform"`
	Usage     int               `json:"usage"`
	Limit     int               `json:"limit"`
	Message   string            `json:"message"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
}

// RecommendationType categorizes a recommendation.
type RecommendationType string

const (
	RecommendationBreak        RecommendationType = "break_suggestion"
	RecommendationMotivational RecommendationType = "motivational"
	RecommendationWellnessTip  RecommendationType = "wellness_tip"
	RecommendationGoalSetting  RecommendationType = "goal_setting"
)

// Recommendation is a generated wellbeing suggestion.
type Recommendation struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	Type      RecommendationType `json:"type"`
	Platform  platform.Platform  `json:"platform,omitempty"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Read      bool               `json:"read"`
	CreatedAt time.Time          `json:"createdAt"`
}
