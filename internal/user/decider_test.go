package user_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"reservecore/internal/user"
)

func TestDecide_BootstrapAdmin_AcceptedWhenNoState(t *testing.T) {
	d := user.Decide(nil, user.Command{
		Kind:         user.CmdBootstrapAdmin,
		UserID:       uuid.New(),
		Email:        "admin@test.com",
		PasswordHash: "hash",
	})
	require.NoError(t, d.Err)
	require.Equal(t, user.EventAdminBootstrapped, d.EventType)
}

func TestDecide_BootstrapAdmin_RejectedWhenUserExists(t *testing.T) {
	existing := &user.State{UserID: uuid.New(), Email: "admin@test.com", Role: user.RoleAdmin}
	d := user.Decide(existing, user.Command{Kind: user.CmdBootstrapAdmin, Email: "someone@test.com"})
	require.ErrorIs(t, d.Err, user.ErrUserAlreadyExists)
}

func TestDecide_RegisterUser_RejectedWhenUserExists(t *testing.T) {
	existing := &user.State{UserID: uuid.New(), Email: "a@test.com", Role: user.RoleUser}
	d := user.Decide(existing, user.Command{Kind: user.CmdRegisterUser, Email: "b@test.com"})
	require.ErrorIs(t, d.Err, user.ErrUserAlreadyExists)
}

func TestDecide_LoginUser_AcceptedOnMatchingEmail(t *testing.T) {
	id := uuid.New()
	existing := &user.State{UserID: id, Email: "a@test.com", PasswordHash: "hash", Role: user.RoleUser}
	d := user.Decide(existing, user.Command{Kind: user.CmdLoginUser, Email: "a@test.com"})
	require.NoError(t, d.Err)
	require.Equal(t, user.EventUserLoggedIn, d.EventType)
}

func TestDecide_LoginUser_RejectedOnMismatchedEmailOrNoState(t *testing.T) {
	d := user.Decide(nil, user.Command{Kind: user.CmdLoginUser, Email: "a@test.com"})
	require.ErrorIs(t, d.Err, user.ErrInvalidCredentials)

	existing := &user.State{UserID: uuid.New(), Email: "a@test.com"}
	d = user.Decide(existing, user.Command{Kind: user.CmdLoginUser, Email: "wrong@test.com"})
	require.ErrorIs(t, d.Err, user.ErrInvalidCredentials)
}

func TestFold_UserLoggedIn_IsIdentity(t *testing.T) {
	existing := &user.State{UserID: uuid.New(), Email: "a@test.com", Role: user.RoleUser}
	next, err := user.Fold(existing, user.EventUserLoggedIn, []byte(`{"userId":"`+existing.UserID.String()+`"}`))
	require.NoError(t, err)
	require.Equal(t, existing, next)
}

func TestFold_UnrecognizedEventType_IsIdentity(t *testing.T) {
	existing := &user.State{UserID: uuid.New(), Email: "a@test.com"}
	next, err := user.Fold(existing, "SomethingElse", []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, existing, next)
}

func TestArgon2Hasher_RoundTrips(t *testing.T) {
	h := user.Argon2Hasher{}
	encoded, err := h.HashPassword("Password123")
	require.NoError(t, err)

	ok, err := h.VerifyPassword("Password123", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.VerifyPassword("wrong", encoded)
	require.NoError(t, err)
	require.False(t, ok)
}
