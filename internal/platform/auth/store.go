package auth

import (
	"context"
	"strings"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/config"
)

type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         appstate.Role
}

type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
}

// ConfigStore: config.yaml の teachers をそのままアカウントとして使う（DBは持たない）
type ConfigStore struct {
	byEmail map[string]Account
}

func NewConfigStore(teachers []config.TeacherAccount) *ConfigStore {
	s := &ConfigStore{byEmail: make(map[string]Account, len(teachers))}
	for _, t := range teachers {
		s.byEmail[normalizeEmail(t.Email)] = Account{
			ID:           t.TeacherID,
			Email:        t.Email,
			Name:         t.Name,
			PasswordHash: t.PasswordHash,
			Role:         appstate.RoleTeacher,
		}
	}
	return s
}

// 見つからなければ nil, nil
func (s *ConfigStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	a, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }
