// Package google implements calendar.Scheduler on the Google Calendar v3 API.
//
// Credentials are resolved in this order:
//
//  1. A token file holding an authorized-user token (access token, refresh
//     token, client ID and secret), as written by the usual installed-app
//     consent flow. Refreshed tokens are written back to the same file.
//     When the token file lacks client credentials they are read from the
//     OAuth client secrets file given as credentials file.
//  2. A credentials file on its own (service account or client key JSON).
//  3. Application default credentials.
//
// Interactive consent is out of scope; the token file must already exist.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/MrWong99/frontdesk/pkg/provider/calendar"
)

var _ calendar.Scheduler = (*Scheduler)(nil)

// DefaultCalendarID is the authenticated user's main calendar.
const DefaultCalendarID = "primary"

// Option is a functional option for Scheduler.
type Option func(*settings)

type settings struct {
	calendarID      string
	credentialsFile string
	tokenFile       string
	clientOptions   []option.ClientOption
}

// WithCalendarID selects the target calendar. Default: "primary".
func WithCalendarID(id string) Option {
	return func(s *settings) {
		if id != "" {
			s.calendarID = id
		}
	}
}

// WithCredentialsFile sets the OAuth client secrets or service account file.
func WithCredentialsFile(path string) Option {
	return func(s *settings) { s.credentialsFile = path }
}

// WithTokenFile sets the authorized-user token file.
func WithTokenFile(path string) Option {
	return func(s *settings) { s.tokenFile = path }
}

// WithClientOptions appends raw API client options (endpoint overrides in
// tests, custom HTTP clients).
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOptions = append(s.clientOptions, opts...) }
}

// Scheduler creates events through the Calendar API.
type Scheduler struct {
	svc        *gcal.Service
	calendarID string
}

// New builds an authenticated Calendar client.
func New(ctx context.Context, opts ...Option) (*Scheduler, error) {
	s := settings{calendarID: DefaultCalendarID}
	for _, o := range opts {
		o(&s)
	}

	var clientOpts []option.ClientOption
	switch {
	case s.tokenFile != "":
		ts, err := tokenSourceFromFiles(ctx, s.tokenFile, s.credentialsFile)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	case s.credentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(s.credentialsFile), option.WithScopes(gcal.CalendarEventsScope))
	}
	clientOpts = append(clientOpts, s.clientOptions...)

	svc, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google calendar: create service: %w", err)
	}
	return &Scheduler{svc: svc, calendarID: s.calendarID}, nil
}

// CreateEvent implements calendar.Scheduler.
func (s *Scheduler) CreateEvent(ctx context.Context, ev calendar.Event) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	body := &gcal.Event{
		Summary: ev.Summary,
		Start:   &gcal.EventDateTime{DateTime: ev.Start, TimeZone: ev.TimeZone},
		End:     &gcal.EventDateTime{DateTime: ev.End, TimeZone: ev.TimeZone},
	}
	for _, email := range ev.Attendees {
		body.Attendees = append(body.Attendees, &gcal.EventAttendee{Email: email})
	}

	created, err := s.svc.Events.Insert(s.calendarID, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google calendar: insert event: %w", err)
	}
	return created.HtmlLink, nil
}

// ─── token handling ──────────────────────────────────────────────────────────

// authorizedUser is the token file layout: the refresh-capable user
// credential written after consent.
type authorizedUser struct {
	Token        string    `json:"token,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token"`
	TokenURI     string    `json:"token_uri,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	ClientSecret string    `json:"client_secret,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

func tokenSourceFromFiles(ctx context.Context, tokenFile, credentialsFile string) (oauth2.TokenSource, error) {
	raw, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("google calendar: read token file: %w", err)
	}
	var au authorizedUser
	if err := json.Unmarshal(raw, &au); err != nil {
		return nil, fmt.Errorf("google calendar: parse token file: %w", err)
	}

	cfg := &oauth2.Config{
		ClientID:     au.ClientID,
		ClientSecret: au.ClientSecret,
		Endpoint:     googleoauth.Endpoint,
		Scopes:       au.Scopes,
	}
	if au.TokenURI != "" {
		cfg.Endpoint.TokenURL = au.TokenURI
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{gcal.CalendarEventsScope}
	}
	if cfg.ClientID == "" {
		if credentialsFile == "" {
			return nil, errors.New("google calendar: token file has no client_id and no credentials file is configured")
		}
		secrets, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("google calendar: read credentials file: %w", err)
		}
		fromSecrets, err := googleoauth.ConfigFromJSON(secrets, cfg.Scopes...)
		if err != nil {
			return nil, fmt.Errorf("google calendar: parse credentials file: %w", err)
		}
		cfg.ClientID, cfg.ClientSecret, cfg.Endpoint = fromSecrets.ClientID, fromSecrets.ClientSecret, fromSecrets.Endpoint
	}

	access := au.AccessToken
	if access == "" {
		access = au.Token
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: au.RefreshToken, Expiry: au.Expiry}
	if tok.RefreshToken == "" && !tok.Valid() {
		return nil, errors.New("google calendar: token file has neither a valid access token nor a refresh token")
	}

	return &persistingTokenSource{
		base: cfg.TokenSource(ctx, tok),
		path: tokenFile,
		file: au,
		last: access,
	}, nil
}

// persistingTokenSource writes refreshed access tokens back to the token file.
type persistingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	file authorizedUser
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}
	p.last = tok.AccessToken
	p.file.Token, p.file.AccessToken, p.file.Expiry = tok.AccessToken, "", tok.Expiry
	if tok.RefreshToken != "" {
		p.file.RefreshToken = tok.RefreshToken
	}
	data, err := json.Marshal(p.file)
	if err == nil {
		err = os.WriteFile(p.path, data, 0o600)
	}
	if err != nil {
		slog.Warn("google calendar: failed to persist refreshed token", "path", p.path, "err", err)
	}
	return tok, nil
}
