package api

import "time"

// User is the profile record returned by the auth endpoints.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// TokenResponse is the success payload of every auth call.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        *User  `json:"user"`
}

// SessionStatus is the payload of GET /auth/session.
type SessionStatus struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user"`
}

// SymbolHit is one row of a symbol search result.
type SymbolHit struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
	Sector string `json:"sector,omitempty"`
}

// NewsItem is one article in a news feed.
type NewsItem struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	URL         string   `json:"url"`
	Source      string   `json:"source"`
	PublishedAt string   `json:"published_at"`
	Sentiment   string   `json:"sentiment"`
	Tickers     []string `json:"tickers"`
}

// NewsResponse wraps a news feed payload.
type NewsResponse struct {
	News []NewsItem `json:"news"`
}
