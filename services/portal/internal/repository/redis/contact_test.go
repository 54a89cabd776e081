package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

func TestContactRepository_SaveAndLoad(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewContactRepository(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.SaveContact(ctx, "sess-1", domain.Contact{Phone: "+905551112233", Address: "Ataturk Cd. 1"}))

	phone, err := mr.Get("portal:checkout:sess-1:phone")
	require.NoError(t, err)
	assert.Equal(t, "+905551112233", phone)
	assert.True(t, mr.TTL("portal:checkout:sess-1:address") > 59*time.Minute)

	got, err := repo.LoadContact(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Contact{Phone: "+905551112233", Address: "Ataturk Cd. 1"}, got)
}

func TestContactRepository_LoadMissing(t *testing.T) {
	client, _ := setupTestRedis(t)
	repo := NewContactRepository(client, time.Hour)

	got, err := repo.LoadContact(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.Contact{}, got)
}

func TestContactRepository_EmptyFieldClearsKey(t *testing.T) {
	client, mr := setupTestRedis(t)
	repo := NewContactRepository(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.SaveContact(ctx, "sess-1", domain.Contact{Phone: "5551112233", Address: "Somewhere"}))
	require.NoError(t, repo.SaveContact(ctx, "sess-1", domain.Contact{Phone: "5551112233"}))

	assert.False(t, mr.Exists("portal:checkout:sess-1:address"))
	got, err := repo.LoadContact(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "5551112233", got.Phone)
	assert.Empty(t, got.Address)
}
