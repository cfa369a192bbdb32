package account

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"finitefield.org/gamified-web/internal/platform/kv"
)

func newService() (*Service, *kv.MemoryStore) {
	mem := kv.NewMemoryStore()
	return NewService(kv.NewBucket(mem, "visitor"), nil), mem
}

func TestSignupNormalisesAndStores(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService()

	user, err := svc.Signup(ctx, SignupInput{Name: "  Asha ", Email: " Asha@Example.COM ", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, User{Name: "Asha", Email: "asha@example.com"}, user)

	raw, err := mem.Get(ctx, "visitor", StorageKey)
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Asha","email":"asha@example.com"}`, raw)
	require.NotContains(t, raw, "pw")
	require.Equal(t, &user, svc.Current(ctx))
}

func TestSignupMissingFields(t *testing.T) {
	svc, _ := newService()
	cases := []struct {
		in   SignupInput
		want string
	}{
		{SignupInput{Email: "a@b.c", Password: "x"}, "Missing name"},
		{SignupInput{Name: "A", Email: "   ", Password: "x"}, "Missing email"},
		{SignupInput{Name: "A", Email: "a@b.c"}, "Missing password"},
		{SignupInput{}, "Missing name"},
	}
	for _, tc := range cases {
		_, err := svc.Signup(context.Background(), tc.in)
		var missing *MissingFieldError
		require.True(t, errors.As(err, &missing), "got %v", err)
		require.Equal(t, tc.want, err.Error())
	}
	require.Nil(t, svc.Current(context.Background()))
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	_, err := svc.Login(ctx, LoginInput{Email: " "})
	require.EqualError(t, err, "Missing email")

	_, err = svc.Login(ctx, LoginInput{Email: "asha@example.com"})
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = svc.Signup(ctx, SignupInput{Name: "Asha", Email: "asha@example.com", Password: "pw"})
	require.NoError(t, err)

	user, err := svc.Login(ctx, LoginInput{Email: "  ASHA@example.com"})
	require.NoError(t, err)
	require.Equal(t, "Asha", user.Name)

	_, err = svc.Login(ctx, LoginInput{Email: "other@example.com"})
	require.EqualError(t, err, "Account not found. Please sign up.")
}

func TestLogoutAndMalformedUser(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService()
	_, err := svc.Signup(ctx, SignupInput{Name: "Asha", Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)

	svc.Logout(ctx)
	require.Nil(t, svc.Current(ctx))
	svc.Logout(ctx)

	require.NoError(t, mem.Set(ctx, "visitor", StorageKey, "{broken"))
	require.Nil(t, svc.Current(ctx))
	require.NoError(t, mem.Set(ctx, "visitor", StorageKey, "null"))
	require.Nil(t, svc.Current(ctx))
}
