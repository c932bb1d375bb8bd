package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiresense/hiresense/internal/store"
)

func TestServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory())

	_, err := svc.Get(ctx, "user-1")
	require.ErrorIs(t, err, ErrNoResume)

	want := &Resume{
		Skills:     []string{"Go"},
		Experience: []string{"Engineer at Acme"},
		Education:  []string{"BSc"},
		Summary:    "backend engineer",
	}
	require.NoError(t, svc.Save(ctx, "user-1", want))

	got, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, want, got)

	require.NoError(t, svc.Delete(ctx, "user-1"))
	_, err = svc.Get(ctx, "user-1")
	require.ErrorIs(t, err, ErrNoResume)

	// Deleting twice stays quiet.
	require.NoError(t, svc.Delete(ctx, "user-1"))
}

func TestHasSkills(t *testing.T) {
	var nilResume *Resume
	require.False(t, nilResume.HasSkills())
	require.False(t, (&Resume{Summary: "text only"}).HasSkills())
	require.True(t, (&Resume{Skills: []string{"Go"}}).HasSkills())
}
