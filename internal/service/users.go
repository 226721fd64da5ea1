package service

import (
	"sort"
	"sync"

	"otelsamples/internal/model"
)

var (
	userService *UserService
	userOnce    sync.Once
)

// Users 返回进程内唯一的用户表
func Users() *UserService {
	userOnce.Do(func() {
		userService = NewUserService()
	})
	return userService
}

// UserService 内存用户表，按字符串 id 索引，后写覆盖先写
type UserService struct {
	mu    sync.RWMutex
	users map[string]model.StaticUser
}

func NewUserService() *UserService {
	return &UserService{
		users: map[string]model.StaticUser{
			"123": {ID: "123", Name: "John Doe", Email: "john@example.com"},
			"456": {ID: "456", Name: "Jane Smith", Email: "jane@example.com"},
		},
	}
}

// List 按 id 排序返回全部用户
func (s *UserService) List() []model.StaticUser {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.StaticUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *UserService) Get(id string) (model.StaticUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *UserService) Put(u model.StaticUser) model.StaticUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return u
}

// CreateDemo 写入固定的 789 用户
func (s *UserService) CreateDemo() model.StaticUser {
	return s.Put(model.StaticUser{
		ID:      "789",
		Name:    "New User",
		Email:   "newuser@example.com",
		Created: "via_static_method",
	})
}
