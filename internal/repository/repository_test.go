package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/staffdesk/bff-gateway/internal/config"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/database"
	"github.com/bigkaa/staffdesk/bff-gateway/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("staffdesk_test"),
		postgres.WithUsername("staffdesk"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("BFF_DB_HOST", host)
	t.Setenv("BFF_DB_PORT", port.Port())
	t.Setenv("BFF_DB_NAME", "staffdesk_test")
	t.Setenv("BFF_DB_USER", "staffdesk")
	t.Setenv("BFF_DB_PASSWORD", "test-password")
	t.Setenv("BFF_DB_SSL_MODE", "disable")
	t.Setenv("BFF_AUTH_TRANSPORT", "bearer")
	t.Setenv("BFF_IDP_URL", "http://localhost:9999")
	t.Setenv("BFF_IDP_ANON_KEY", "anon")
	t.Setenv("BFF_IDP_SERVICE_ROLE_KEY", "service")
	t.Setenv("BFF_APPSCRIPT_BASE_URL", "http://localhost:9998")
	t.Setenv("BFF_APPSCRIPT_INTERNAL_TOKEN", "integration-test-token-000")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

func ptr[T any](v T) *T { return &v }

// --- Тесты ProfileRepository ---

func TestProfileCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewProfileRepository(pool)

	id := uuid.New()
	p := &model.Profile{
		ID:           id,
		LegacyUserID: ptr(int64(17)),
		Name:         "Ana Pérez",
		Team:         ptr("Soporte"),
	}

	// Create
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if p.Status != model.StatusActive {
		t.Errorf("Status = %q, ожидается %q", p.Status, model.StatusActive)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// Повторное создание — конфликт
	if err := repo.Create(ctx, &model.Profile{ID: id, Name: "dup"}); !errors.Is(err, ErrConflict) {
		t.Errorf("Create() дубликат: err = %v, ожидается ErrConflict", err)
	}

	// FindByID
	got, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID() ошибка: %v", err)
	}
	if got == nil || got.Name != "Ana Pérez" || !got.HasLegacyID() {
		t.Fatalf("FindByID() = %+v", got)
	}

	// Update — меняются только заданные поля
	updated, err := repo.Update(ctx, id, model.ProfilePatch{Leader: ptr("Luis")})
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if updated.Leader == nil || *updated.Leader != "Luis" {
		t.Errorf("Leader = %v, ожидается Luis", updated.Leader)
	}
	if updated.Team == nil || *updated.Team != "Soporte" {
		t.Errorf("Team = %v, не должен меняться", updated.Team)
	}
	if !updated.UpdatedAt.After(p.UpdatedAt) && !updated.UpdatedAt.Equal(p.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, ожидается не раньше %v", updated.UpdatedAt, p.UpdatedAt)
	}

	// List
	if err := repo.Create(ctx, &model.Profile{ID: uuid.New(), Name: "Second"}); err != nil {
		t.Fatalf("Create() второй профиль: %v", err)
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() вернул %d записей, ожидается 2", len(list))
	}
	if list[0].Name != "Second" {
		t.Errorf("List()[0] = %q, новые должны идти первыми", list[0].Name)
	}
}

func TestProfileNotFound(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewProfileRepository(pool)

	got, err := repo.FindByID(ctx, uuid.New())
	if err != nil || got != nil {
		t.Errorf("FindByID() = %v, %v; ожидается nil, nil", got, err)
	}

	_, err = repo.Update(ctx, uuid.New(), model.ProfilePatch{Name: ptr("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() err = %v, ожидается ErrNotFound", err)
	}
}

// --- Тесты RoleRepository ---

func TestAssignRoleIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewRoleRepository(pool)
	userID := uuid.New()

	has, err := repo.HasAnyAssignments(ctx)
	if err != nil {
		t.Fatalf("HasAnyAssignments() ошибка: %v", err)
	}
	if has {
		t.Fatal("HasAnyAssignments() = true на пустой базе")
	}

	// Двойное назначение не создаёт дубликат
	for i := 0; i < 2; i++ {
		if err := repo.AssignRole(ctx, userID, "admin"); err != nil {
			t.Fatalf("AssignRole() #%d ошибка: %v", i+1, err)
		}
	}
	roles, err := repo.ListRoles(ctx, userID)
	if err != nil {
		t.Fatalf("ListRoles() ошибка: %v", err)
	}
	if len(roles) != 1 || roles[0] != "admin" {
		t.Errorf("ListRoles() = %v, ожидается [admin]", roles)
	}

	has, _ = repo.HasAnyAssignments(ctx)
	if !has {
		t.Error("HasAnyAssignments() = false после назначения")
	}

	if err := repo.RevokeRole(ctx, userID, "admin"); err != nil {
		t.Fatalf("RevokeRole() ошибка: %v", err)
	}
	roles, _ = repo.ListRoles(ctx, userID)
	if len(roles) != 0 {
		t.Errorf("ListRoles() после отзыва = %v, ожидается пусто", roles)
	}
}

func TestAssignRoleInTx(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)
	userID := uuid.New()

	// Ошибка внутри транзакции откатывает назначение
	errBoom := errors.New("boom")
	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewRoleRepository(tx).AssignRole(ctx, userID, "admin"); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("RunInTx() err = %v, ожидается errBoom", err)
	}

	roles, err := NewRoleRepository(pool).ListRoles(ctx, userID)
	if err != nil {
		t.Fatalf("ListRoles() ошибка: %v", err)
	}
	if len(roles) != 0 {
		t.Errorf("ListRoles() = %v, назначение должно быть откачено", roles)
	}
}

// --- Тесты SessionRepository ---

func TestSessionLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(pool)
	userID := uuid.New()

	first := &model.Session{SessionID: uuid.New(), UserID: userID, IP: ptr("10.0.0.1")}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if first.LastSeenAt == nil {
		t.Error("LastSeenAt не установлен")
	}
	time.Sleep(10 * time.Millisecond)
	second := &model.Session{SessionID: uuid.New(), UserID: userID}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// Отзыв чужой сессии — no-op
	if err := repo.Revoke(ctx, uuid.New(), first.SessionID); err != nil {
		t.Fatalf("Revoke() чужой сессии: %v", err)
	}
	if err := repo.Revoke(ctx, userID, first.SessionID); err != nil {
		t.Fatalf("Revoke() ошибка: %v", err)
	}

	list, err := repo.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListByUser() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByUser() вернул %d, ожидается 2", len(list))
	}
	if list[0].SessionID != second.SessionID {
		t.Error("ListByUser(): новые сессии должны идти первыми")
	}
	if list[1].RevokedAt == nil {
		t.Error("RevokedAt не установлен после отзыва")
	}
	if list[0].RevokedAt != nil {
		t.Error("вторая сессия не должна быть отозвана")
	}
}

func TestRunAccountsTx(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	runner := NewTxRunner(pool)
	userID := uuid.New()

	err := runner.RunAccountsTx(ctx, func(accounts Accounts) error {
		if err := accounts.Profiles.Create(ctx, &model.Profile{ID: userID, Name: "Bootstrap"}); err != nil {
			return err
		}
		return accounts.Roles.AssignRole(ctx, userID, "admin")
	})
	if err != nil {
		t.Fatalf("RunAccountsTx() ошибка: %v", err)
	}

	profile, err := NewProfileRepository(pool).FindByID(ctx, userID)
	if err != nil || profile == nil {
		t.Fatalf("FindByID() = %v, %v, ожидается профиль", profile, err)
	}
	has, err := NewRoleRepository(pool).HasAnyAssignments(ctx)
	if err != nil || !has {
		t.Errorf("HasAnyAssignments() = %v, %v, ожидается true", has, err)
	}
}
