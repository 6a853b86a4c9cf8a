package profile

import (
	"context"
	"testing"

	"biocloud/internal/domain"
	"biocloud/internal/domain/models"
	"biocloud/internal/service/servicetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureProfile(t *testing.T) {
	db := servicetest.NewDB()
	svc := NewService(db.Profiles(), servicetest.Logger())
	ctx := context.Background()

	actor := models.Identity{UserID: "u-1", Email: "ada@example.org", FullName: "Ada Yonath"}
	p, err := svc.EnsureProfile(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, "Ada Yonath", p.FullName)

	// A later token without a name keeps the stored one
	p, err = svc.EnsureProfile(ctx, models.Identity{UserID: "u-1", Email: "ada@weizmann.ac.il"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Yonath", p.FullName)
	assert.Equal(t, "ada@weizmann.ac.il", p.Email)
}

func TestEnsureProfileAnonymous(t *testing.T) {
	svc := NewService(servicetest.NewDB().Profiles(), servicetest.Logger())

	_, err := svc.EnsureProfile(context.Background(), models.Anonymous())
	assert.ErrorIs(t, err, domain.ErrValidation)
}
