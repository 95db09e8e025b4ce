package devbackend_test

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/pinenote/internal/apperr"
	"github.com/starford/pinenote/internal/devbackend"
	"github.com/starford/pinenote/internal/models"
	"github.com/starford/pinenote/internal/remote"
	"github.com/starford/pinenote/internal/testutil"
)

func TestAPIKeyRequired(t *testing.T) {
	b := testutil.TestBackend(t)

	bad, err := remote.NewClient(b.URL, "wrong-key")
	require.NoError(t, err)
	_, err = bad.SignInWithPassword(context.Background(), "a@example.com", "secret1")

	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
	assert.Equal(t, "Invalid API key", re.Message)
}

func TestSignUpSignInSignOut(t *testing.T) {
	b := testutil.TestBackend(t)
	ctx := context.Background()

	token, userID := b.SignUp(t, "Ada@Example.com", "secret1")
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, userID)

	resp, err := b.Client.SignInWithPassword(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, userID, resp.User.ID)
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.RefreshToken)

	require.NoError(t, b.Client.SignOut(ctx, resp.AccessToken))

	// A revoked token is no longer accepted.
	_, err = b.Client.ListNotes(ctx, resp.AccessToken, userID)
	assert.True(t, remote.IsUnauthorized(err), "got %v", err)
}

func TestSignIn_WrongPassword(t *testing.T) {
	b := testutil.TestBackend(t)
	b.SignUp(t, "ada@example.com", "secret1")

	_, err := b.Client.SignInWithPassword(context.Background(), "ada@example.com", "nope123")
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "Invalid login credentials", re.Message)
}

func TestSignUp_Validation(t *testing.T) {
	b := testutil.TestBackend(t)
	ctx := context.Background()

	_, err := b.Client.SignUp(ctx, "not-an-email", "secret1")
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnprocessableEntity, re.Status)
	assert.Equal(t, "validation_failed", re.Code)

	_, err = b.Client.SignUp(ctx, "ada@example.com", "12345")
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "weak_password", re.Code)

	b.SignUp(t, "ada@example.com", "secret1")
	_, err = b.Client.SignUp(ctx, "ada@example.com", "secret1")
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "User already registered", re.Message)
}

func TestSignUp_ConfirmationRequired(t *testing.T) {
	b := testutil.TestBackend(t, devbackend.WithAutoConfirm(false))
	ctx := context.Background()

	resp, err := b.Client.SignUp(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Empty(t, resp.AccessToken)
	require.NotNil(t, resp.User)

	_, err = b.Client.SignInWithPassword(ctx, "ada@example.com", "secret1")
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Email not confirmed", re.Message)

	require.NoError(t, b.Server.DB().ConfirmUser(ctx, "ada@example.com"))
	_, err = b.Client.SignInWithPassword(ctx, "ada@example.com", "secret1")
	assert.NoError(t, err)
}

func TestRefreshRotatesTokens(t *testing.T) {
	b := testutil.TestBackend(t)
	ctx := context.Background()
	b.SignUp(t, "ada@example.com", "secret1")

	first, err := b.Client.SignInWithPassword(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	next, err := b.Client.RefreshSession(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, next.AccessToken)
	assert.Equal(t, first.User.ID, next.User.ID)

	// Refresh tokens are single use.
	_, err = b.Client.RefreshSession(ctx, first.RefreshToken)
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.Status)
}

func TestExpiredAccessToken(t *testing.T) {
	var offset atomic.Int64
	clock := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	b := testutil.TestBackend(t, devbackend.WithClock(clock), devbackend.WithTokenTTL(time.Minute))
	token, userID := b.SignUp(t, "ada@example.com", "secret1")

	offset.Store(int64(2 * time.Minute))
	_, err := b.Client.ListNotes(context.Background(), token, userID)
	assert.True(t, remote.IsUnauthorized(err), "got %v", err)
}

func TestNotesCRUD(t *testing.T) {
	b := testutil.TestBackend(t)
	ctx := context.Background()
	token, userID := b.SignUp(t, "ada@example.com", "secret1")

	first, err := b.Client.InsertNote(ctx, token, models.NoteInput{Title: "First", Content: "a", UserID: userID})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, userID, first.UserID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)

	second, err := b.Client.InsertNote(ctx, token, models.NoteInput{Title: "Second", UserID: userID})
	require.NoError(t, err)

	// Client-supplied updated_at is replaced by the server clock.
	stale := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	updated, err := b.Client.UpdateNote(ctx, token, first.ID, models.NotePatch{Title: "First!", Content: "b", UpdatedAt: stale})
	require.NoError(t, err)
	assert.Equal(t, "First!", updated.Title)
	assert.Equal(t, "b", updated.Content)
	assert.True(t, updated.UpdatedAt.After(stale))
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)

	list, err := b.Client.ListNotes(ctx, token, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID, "most recently updated first")
	assert.Equal(t, second.ID, list[1].ID)

	got, err := b.Client.GetNote(ctx, token, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Title)

	require.NoError(t, b.Client.DeleteNote(ctx, token, second.ID))
	_, err = b.Client.GetNote(ctx, token, second.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRowOwnership(t *testing.T) {
	b := testutil.TestBackend(t)
	ctx := context.Background()
	adaToken, adaID := b.SignUp(t, "ada@example.com", "secret1")
	bobToken, _ := b.SignUp(t, "bob@example.com", "secret1")

	n, err := b.Client.InsertNote(ctx, adaToken, models.NoteInput{Title: "Private", UserID: adaID})
	require.NoError(t, err)

	// Bob can neither see, change nor delete it.
	list, err := b.Client.ListNotes(ctx, bobToken, adaID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = b.Client.GetNote(ctx, bobToken, n.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = b.Client.UpdateNote(ctx, bobToken, n.ID, models.NotePatch{Title: "hijack"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, b.Client.DeleteNote(ctx, bobToken, n.ID))
	_, err = b.Client.GetNote(ctx, adaToken, n.ID)
	assert.NoError(t, err, "foreign delete must be a no-op")

	// Inserting on behalf of someone else violates the row policy.
	_, err = b.Client.InsertNote(ctx, bobToken, models.NoteInput{Title: "x", UserID: adaID})
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.Status)
	assert.Equal(t, "42501", re.Code)

	// Anonymous callers see nothing.
	_, err = b.Client.GetNote(ctx, "", n.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	anon, err := b.Client.ListNotes(ctx, "", adaID)
	require.NoError(t, err)
	assert.Empty(t, anon)
}

func TestComments(t *testing.T) {
	b := testutil.TestBackend(t)
	ctx := context.Background()
	token, userID := b.SignUp(t, "ada@example.com", "secret1")
	n, err := b.Client.InsertNote(ctx, token, models.NoteInput{Title: "N", UserID: userID})
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		_, err := b.Client.InsertComment(ctx, token, models.CommentInput{NoteID: n.ID, Content: text})
		require.NoError(t, err)
	}

	cs, err := b.Client.ListComments(ctx, token, n.ID)
	require.NoError(t, err)
	var texts []string
	for _, c := range cs {
		texts = append(texts, c.Content)
		assert.Equal(t, n.ID, c.NoteID)
	}
	assert.Equal(t, []string{"one", "two", "three"}, texts)

	_, err = b.Client.InsertComment(ctx, "", models.CommentInput{NoteID: n.ID, Content: "anon"})
	assert.True(t, remote.IsUnauthorized(err), "got %v", err)

	_, err = b.Client.InsertComment(ctx, token, models.CommentInput{NoteID: "missing", Content: "x"})
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.Status)

	// Deleting the note takes its comments with it.
	require.NoError(t, b.Client.DeleteNote(ctx, token, n.ID))
	cs, err = b.Client.ListComments(ctx, token, n.ID)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestHealth(t *testing.T) {
	b := testutil.TestBackend(t)
	resp, err := http.Get(strings.TrimRight(b.URL, "/") + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
