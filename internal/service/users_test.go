package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otelsamples/internal/model"
)

func TestUserServiceSeedAndCreate(t *testing.T) {
	s := NewUserService()

	users := s.List()
	require.Len(t, users, 2)
	assert.Equal(t, "123", users[0].ID)
	assert.Equal(t, "Jane Smith", users[1].Name)

	created := s.CreateDemo()
	assert.Equal(t, "via_static_method", created.Created)
	got, ok := s.Get("789")
	require.True(t, ok)
	assert.Equal(t, "newuser@example.com", got.Email)

	_, ok = s.Get("999")
	assert.False(t, ok)
}

func TestUserServiceLastWriteWins(t *testing.T) {
	s := NewUserService()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Put(model.StaticUser{ID: "123", Name: "racer"})
		}()
	}
	wg.Wait()

	s.Put(model.StaticUser{ID: "123", Name: "final"})
	got, _ := s.Get("123")
	assert.Equal(t, "final", got.Name)
	assert.Len(t, s.List(), 2)
}
