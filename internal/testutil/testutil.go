// Package testutil holds in-memory stand-ins for the Postgres repositories
// and the SMTP sender, plus request helpers for handler tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"accountapi/internal/entity"
	"accountapi/internal/mail"
	"accountapi/internal/token"
	"accountapi/internal/user"
)

// NewRequest creates a new HTTP request for testing
func NewRequest(method, path string, body interface{}) *http.Request {
	var r *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(bodyBytes))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	return r
}

// NewRequestWithAuth creates a new HTTP request carrying a bearer token
func NewRequestWithAuth(method, path string, body interface{}, token string) *http.Request {
	r := NewRequest(method, path, body)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

// RecordResponse records the HTTP response for testing
type RecordResponse struct {
	Code   int
	Header http.Header
	Body   map[string]interface{}
}

// RecordHTTPResponse records the HTTP response
func RecordHTTPResponse(w *httptest.ResponseRecorder) RecordResponse {
	result := w.Result()
	defer result.Body.Close()

	bodyBytes, _ := io.ReadAll(result.Body)

	var bodyMap map[string]interface{}
	if len(bodyBytes) > 0 {
		_ = json.NewDecoder(bytes.NewReader(bodyBytes)).Decode(&bodyMap)
	}

	return RecordResponse{
		Code:   result.StatusCode,
		Header: result.Header,
		Body:   bodyMap,
	}
}

// Data returns the "data" object of a success envelope, or nil.
func (r RecordResponse) Data() map[string]interface{} {
	d, _ := r.Body["data"].(map[string]interface{})
	return d
}

// ErrorCode returns error.code of a failure envelope, or "".
func (r RecordResponse) ErrorCode() string {
	e, _ := r.Body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

// Clock is a settable token.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MemTokens is an in-memory token.Repository.
type MemTokens struct {
	mu   sync.Mutex
	rows map[string]entity.Token
}

func NewMemTokens() *MemTokens {
	return &MemTokens{rows: map[string]entity.Token{}}
}

func (m *MemTokens) Create(_ context.Context, t entity.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.Value]; ok {
		return token.ErrAlreadyExists
	}
	m.rows[t.Value] = t
	return nil
}

func (m *MemTokens) Get(_ context.Context, value string) (entity.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[value]
	if !ok {
		return entity.Token{}, token.ErrNotFound
	}
	return t, nil
}

func (m *MemTokens) Touch(_ context.Context, value string, now, notBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[value]
	if !ok || !t.LastUsedAt.After(notBefore) {
		return 0, token.ErrNotFound
	}
	if now.After(t.LastUsedAt) {
		t.LastUsedAt = now
		m.rows[value] = t
	}
	return t.UserID, nil
}

func (m *MemTokens) DeleteByValue(_ context.Context, value string) error {
	m.mu.Lock()
	delete(m.rows, value)
	m.mu.Unlock()
	return nil
}

func (m *MemTokens) DeleteByUserID(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for v, t := range m.rows {
		if t.UserID == userID {
			delete(m.rows, v)
		}
	}
	return nil
}

func (m *MemTokens) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for v, t := range m.rows {
		if !t.LastUsedAt.After(cutoff) {
			delete(m.rows, v)
			n++
		}
	}
	return n, nil
}

// Put stores t as is, bypassing issuance.
func (m *MemTokens) Put(t entity.Token) {
	m.mu.Lock()
	m.rows[t.Value] = t
	m.mu.Unlock()
}

func (m *MemTokens) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// MemUsers is an in-memory user.Repository. Deleting a user also removes
// its tokens from Tokens when set, like the foreign key cascade does.
type MemUsers struct {
	Tokens *MemTokens

	mu     sync.Mutex
	nextID int64
	rows   map[int64]entity.User
}

func NewMemUsers(tokens *MemTokens) *MemUsers {
	return &MemUsers{Tokens: tokens, rows: map[int64]entity.User{}}
}

func matches(u entity.User, c user.Criteria) bool {
	switch {
	case c.ID != 0:
		return u.ID == c.ID
	case c.Email != "":
		return u.Email == c.Email
	case c.ActivationToken != "":
		return u.ActivationToken != nil && *u.ActivationToken == c.ActivationToken
	default:
		return u.PasswordResetToken != nil && *u.PasswordResetToken == c.PasswordResetToken
	}
}

func validCriteria(c user.Criteria) bool {
	n := 0
	for _, set := range []bool{c.ID != 0, c.Email != "", c.ActivationToken != "", c.PasswordResetToken != ""} {
		if set {
			n++
		}
	}
	return n == 1
}

func (m *MemUsers) Create(ctx context.Context, u entity.User, confirm func(context.Context, entity.User) error) (entity.User, error) {
	m.mu.Lock()
	for _, existing := range m.rows {
		if existing.Email == u.Email {
			m.mu.Unlock()
			return entity.User{}, user.ErrAlreadyExists
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.mu.Unlock()

	if confirm != nil {
		if err := confirm(ctx, u); err != nil {
			return entity.User{}, err
		}
	}

	m.mu.Lock()
	m.rows[u.ID] = u
	m.mu.Unlock()
	return u, nil
}

func (m *MemUsers) Find(_ context.Context, c user.Criteria) (entity.User, error) {
	if !validCriteria(c) {
		return entity.User{}, user.ErrInvalidCriteria
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if matches(u, c) {
			return u, nil
		}
	}
	return entity.User{}, user.ErrNotFound
}

func (m *MemUsers) Update(_ context.Context, c user.Criteria, p user.Patch) (entity.User, error) {
	if !validCriteria(c) {
		return entity.User{}, user.ErrInvalidCriteria
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.rows {
		if !matches(u, c) {
			continue
		}
		if p.Username != nil {
			u.Username = *p.Username
		}
		if p.PasswordHash != nil {
			u.Password = *p.PasswordHash
		}
		if p.Inactive != nil {
			u.Inactive = *p.Inactive
		}
		if p.Image != nil {
			img := *p.Image
			u.Image = &img
		}
		if p.ClearActivationToken {
			u.ActivationToken = nil
		}
		if p.PasswordResetToken != nil {
			rt := *p.PasswordResetToken
			u.PasswordResetToken = &rt
		} else if p.ClearPasswordResetToken {
			u.PasswordResetToken = nil
		}
		u.UpdatedAt = time.Now()
		m.rows[id] = u
		return u, nil
	}
	return entity.User{}, user.ErrNotFound
}

func (m *MemUsers) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	delete(m.rows, id)
	m.mu.Unlock()
	if m.Tokens != nil {
		return m.Tokens.DeleteByUserID(ctx, id)
	}
	return nil
}

func (m *MemUsers) ListActive(_ context.Context, excludeID int64, limit, offset int) ([]entity.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := []entity.User{}
	for _, u := range m.rows {
		if !u.Inactive && u.ID != excludeID {
			active = append(active, u)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	total := len(active)
	if offset >= total {
		return []entity.User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return active[offset:end], total, nil
}

// Outbox is a mail.Sender that records messages. Setting Fail makes every
// Send return ErrSendFailed.
type Outbox struct {
	mu   sync.Mutex
	Fail bool
	sent []mail.Message
}

var ErrSendFailed = errors.New("outbox: send failed")

func (o *Outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Fail {
		return ErrSendFailed
	}
	o.sent = append(o.sent, msg)
	return nil
}

func (o *Outbox) Sent() []mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mail.Message(nil), o.sent...)
}

// Last returns the most recent message; ok is false when none was sent.
func (o *Outbox) Last() (mail.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		return mail.Message{}, false
	}
	return o.sent[len(o.sent)-1], true
}
