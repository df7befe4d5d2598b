package business

import (
	"fmt"
	"time"
)

// APIError represents a non-2xx response from the Business Profile API.
// It carries the HTTP status so the resilience layer can classify it.
type APIError struct {
	Status int
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("business profile API %s: status %d: %s", e.Path, e.Status, e.Body)
}

// StatusCode implements resilience.StatusCoder.
func (e *APIError) StatusCode() int {
	return e.Status
}

// Review is a customer review on a location.
type Review struct {
	ReviewID   string     `json:"reviewId"`
	Reviewer   Reviewer   `json:"reviewer"`
	StarRating string     `json:"starRating"` // ONE..FIVE
	Comment    string     `json:"comment"`
	CreateTime time.Time  `json:"createTime"`
	UpdateTime time.Time  `json:"updateTime"`
	Reply      *ReviewReply `json:"reviewReply,omitempty"`
}

// Reviewer identifies the review author.
type Reviewer struct {
	DisplayName string `json:"displayName"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// ReviewReply is an owner reply attached to a review.
type ReviewReply struct {
	Comment    string    `json:"comment"`
	UpdateTime time.Time `json:"updateTime"`
}

// Rating converts the API's star enum to a number, 0 if unknown.
func (r Review) Rating() int {
	switch r.StarRating {
	case "ONE":
		return 1
	case "TWO":
		return 2
	case "THREE":
		return 3
	case "FOUR":
		return 4
	case "FIVE":
		return 5
	default:
		return 0
	}
}

// HasReply reports whether the owner already replied upstream.
func (r Review) HasReply() bool {
	return r.Reply != nil && r.Reply.Comment != ""
}

// LocalPost is the payload for publishing a post on a location.
type LocalPost struct {
	LanguageCode string        `json:"languageCode"`
	Summary      string        `json:"summary"`
	TopicType    string        `json:"topicType"`
	CallToAction *CallToAction `json:"callToAction,omitempty"`
}

// CallToAction is the button attached to a local post.
type CallToAction struct {
	ActionType string `json:"actionType"` // BOOK, ORDER, SHOP, LEARN_MORE, SIGN_UP, CALL
	URL        string `json:"url,omitempty"`
}

// PublishedPost is the API's echo of a created local post.
type PublishedPost struct {
	Name       string `json:"name"` // accounts/*/locations/*/localPosts/*
	State      string `json:"state"`
	SearchURL  string `json:"searchUrl"`
	CreateTime string `json:"createTime"`
}

// Account is a Business Profile account visible to the operator.
type Account struct {
	Name        string // accounts/{id}
	AccountName string
	Type        string
}

// Location is one business location under an account.
type Location struct {
	Name       string // locations/{id}
	Title      string
	WebsiteURI string
}
