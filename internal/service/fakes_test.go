package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/staffdesk/bff-gateway/internal/api/errors"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/idp"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/repository"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr[T any](v T) *T { return &v }

// --- Репозитории в памяти ---

type fakeProfiles struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*model.Profile
	createErr error
	updateErr error
}

func newFakeProfiles(profiles ...*model.Profile) *fakeProfiles {
	f := &fakeProfiles{items: make(map[uuid.UUID]*model.Profile)}
	for _, p := range profiles {
		f.items[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) FindByID(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id], nil
}

func (f *fakeProfiles) Create(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.items[p.ID]; ok {
		return repository.ErrConflict
	}
	f.items[p.ID] = p
	return nil
}

func (f *fakeProfiles) Update(_ context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.LegacyUserID != nil {
		p.LegacyUserID = patch.LegacyUserID
	}
	return p, nil
}

func (f *fakeProfiles) List(_ context.Context) ([]*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Profile, 0, len(f.items))
	for _, p := range f.items {
		out = append(out, p)
	}
	return out, nil
}

type fakeRoles struct {
	mu        sync.Mutex
	items     map[uuid.UUID][]string
	listErr   error
	assignErr error
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{items: make(map[uuid.UUID][]string)}
}

func (f *fakeRoles) with(id uuid.UUID, roles ...string) *fakeRoles {
	f.items[id] = roles
	return f
}

func (f *fakeRoles) ListRoles(_ context.Context, id uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string{}, f.items[id]...), nil
}

func (f *fakeRoles) AssignRole(_ context.Context, id uuid.UUID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignErr != nil {
		return f.assignErr
	}
	for _, r := range f.items[id] {
		if r == role {
			return nil
		}
	}
	f.items[id] = append(f.items[id], role)
	return nil
}

func (f *fakeRoles) RevokeRole(_ context.Context, id uuid.UUID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.items[id][:0]
	for _, r := range f.items[id] {
		if r != role {
			kept = append(kept, r)
		}
	}
	f.items[id] = kept
	return nil
}

func (f *fakeRoles) HasAnyAssignments(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, roles := range f.items {
		if len(roles) > 0 {
			return true, nil
		}
	}
	return false, nil
}

type fakeSessions struct {
	items []*model.Session
}

func (f *fakeSessions) Create(_ context.Context, s *model.Session) error {
	f.items = append(f.items, s)
	return nil
}

func (f *fakeSessions) Revoke(_ context.Context, userID, sessionID uuid.UUID) error {
	for _, s := range f.items {
		if s.UserID == userID && s.SessionID == sessionID {
			now := s.CreatedAt
			s.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeSessions) ListByUser(_ context.Context, userID uuid.UUID) ([]*model.Session, error) {
	var out []*model.Session
	for _, s := range f.items {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

// fakeAccountsTx выполняет fn над репозиториями без транзакции.
type fakeAccountsTx struct {
	profiles *fakeProfiles
	roles    *fakeRoles
}

func (f *fakeAccountsTx) RunAccountsTx(_ context.Context, fn func(accounts repository.Accounts) error) error {
	return fn(repository.Accounts{Profiles: f.profiles, Roles: f.roles})
}

// --- Шлюз действий ---

type gatewayCall struct {
	action  string
	payload map[string]any
}

// fakeGateway записывает вызовы и отдаёт ответ по имени действия.
type fakeGateway struct {
	mu        sync.Mutex
	responses map[string]json.RawMessage
	errs      map[string]error
	calls     []gatewayCall
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		responses: make(map[string]json.RawMessage),
		errs:      make(map[string]error),
	}
}

func (g *fakeGateway) respond(action, data string) *fakeGateway {
	g.responses[action] = json.RawMessage(data)
	return g
}

func (g *fakeGateway) fail(action string, err error) *fakeGateway {
	g.errs[action] = err
	return g
}

func (g *fakeGateway) Call(_ context.Context, action string, payload any) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, _ := payload.(map[string]any)
	g.calls = append(g.calls, gatewayCall{action: action, payload: p})
	if err := g.errs[action]; err != nil {
		return nil, err
	}
	if data, ok := g.responses[action]; ok {
		return data, nil
	}
	return json.RawMessage(`null`), nil
}

func (g *fakeGateway) last(action string) (gatewayCall, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.calls) - 1; i >= 0; i-- {
		if g.calls[i].action == action {
			return g.calls[i], true
		}
	}
	return gatewayCall{}, false
}

// --- IdP ---

type fakeIDP struct {
	session     *idp.Session
	loginErr    error
	created     *idp.User
	createErr   error
	deleted     []uuid.UUID
	deleteErr   error
	recovered   []string
	recoveryErr error
}

func (f *fakeIDP) Login(_ context.Context, _, _ string) (*idp.Session, error) {
	return f.session, f.loginErr
}

func (f *fakeIDP) Refresh(_ context.Context, _ string) (*idp.Session, error) {
	return f.session, f.loginErr
}

func (f *fakeIDP) CreateUser(_ context.Context, email, _ string) (*idp.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.created == nil {
		f.created = &idp.User{ID: uuid.New(), Email: email}
	}
	return f.created, nil
}

func (f *fakeIDP) DeleteUser(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeIDP) SendPasswordRecovery(_ context.Context, email, _ string) error {
	f.recovered = append(f.recovered, email)
	return f.recoveryErr
}

// --- Проверки ---

func assertAPIError(t *testing.T, err error, status int, message string) {
	t.Helper()
	var apiErr *apierrors.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("ошибка %v, ожидается *apierrors.Error", err)
	}
	if apiErr.Status != status || (message != "" && apiErr.Message != message) {
		t.Errorf("ошибка = %d %q, ожидается %d %q", apiErr.Status, apiErr.Message, status, message)
	}
}
