package gifts

import (
	"context"
	"testing"
	"time"

	"giftsplit-backend/internal/domain"
	"giftsplit-backend/internal/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupJoin(t *testing.T) (*Service, *CreatedGift) {
	t.Helper()
	s, _ := setupGiftsTest(t)
	out, err := s.CreateGift(context.Background(), CreateGiftInput{Name: "Retirement gift", TotalPriceCents: 9000})
	require.NoError(t, err)
	return s, out
}

func TestRespond_DeclineThenAcceptIsConflict(t *testing.T) {
	s, out := setupJoin(t)
	ctx := context.Background()

	inv, created, err := s.Respond(ctx, out.Link.Token, RespondInput{
		Name: "Ann", Email: "Ann@Example.com", Phone: "555", Decision: "no",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.InviteeDeclined, inv.Status)
	assert.Equal(t, "ann@example.com", inv.Email)

	_, _, err = s.Respond(ctx, out.Link.Token, RespondInput{
		Name: "Ann", Email: "ann@example.com", Decision: "yes",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	var invitees []domain.Invitee
	require.NoError(t, s.DB.Where("gift_id = ?", out.Gift.ID).Find(&invitees).Error)
	require.Len(t, invitees, 1)
	assert.Equal(t, domain.InviteeDeclined, invitees[0].Status)
}

func TestRespond_SameDecisionUpdatesDetails(t *testing.T) {
	s, out := setupJoin(t)
	ctx := context.Background()

	first, created, err := s.Respond(ctx, out.Link.Token, RespondInput{Name: "Bob", Email: "bob@example.com", Decision: "yes"})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := s.Respond(ctx, out.Link.Token, RespondInput{
		Name: "Robert", Email: "BOB@example.com", Phone: "+1 555 0100", Decision: "yes",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Robert", second.Name)
	assert.Equal(t, "+1 555 0100", second.Phone)
	assert.Equal(t, domain.InviteeAccepted, second.Status)
}

func TestRespond_OrganizerInviteMayDecline(t *testing.T) {
	s, out := setupJoin(t)
	ctx := context.Background()
	_, err := s.AddInvitees(ctx, out.Gift.ID.String(), AddInviteesInput{Emails: []string{"carol@example.com"}})
	require.NoError(t, err)

	inv, created, err := s.Respond(ctx, out.Link.Token, RespondInput{Name: "Carol", Email: "carol@example.com", Decision: "no"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.InviteeDeclined, inv.Status)
	assert.Equal(t, "Carol", inv.Name)
}

func TestRespond_LockedGiftIsConflict(t *testing.T) {
	s, out := setupJoin(t)
	ctx := context.Background()
	_, err := s.AddInvitees(ctx, out.Gift.ID.String(), AddInviteesInput{Emails: []string{"a@example.com"}})
	require.NoError(t, err)
	_, err = s.LockAndAssign(ctx, out.Gift.ID.String())
	require.NoError(t, err)

	_, _, err = s.Respond(ctx, out.Link.Token, RespondInput{Name: "Late", Email: "late@example.com", Decision: "yes"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, "Gift is already locked and cannot accept new joins", err.Error())
}

func TestRespond_Validation(t *testing.T) {
	s, out := setupJoin(t)
	_, _, err := s.Respond(context.Background(), out.Link.Token, RespondInput{Name: "A", Email: "a@example.com", Decision: "maybe"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "decision must be one of [yes no]", err.Error())
}

func TestJoin_ExpiredLinkIsGoneUnknownIsNotFound(t *testing.T) {
	s, out := setupJoin(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.DB.Model(out.Link).Update("expires_at", past).Error)

	_, err := s.Preview(ctx, out.Link.Token)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindGone))
	assert.Equal(t, "Invitation link has expired", err.Error())

	_, err = s.InviteeStatus(ctx, out.Link.Token, "a@example.com")
	assert.True(t, apperr.Is(err, apperr.KindGone))

	_, _, err = s.Respond(ctx, out.Link.Token, RespondInput{Name: "A", Email: "a@example.com", Decision: "yes"})
	assert.True(t, apperr.Is(err, apperr.KindGone))

	_, err = s.Preview(ctx, "no-such-token")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = s.InviteeStatus(ctx, "no-such-token", "a@example.com")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestJoin_RevokedLinkIsGone(t *testing.T) {
	s, out := setupJoin(t)
	ctx := context.Background()
	_, err := s.RevokeLink(ctx, out.Gift.ID.String(), out.Link.ID.String())
	require.NoError(t, err)

	_, err = s.Preview(ctx, out.Link.Token)
	require.Error(t, err)
	assert.Equal(t, "Invitation link has been revoked", err.Error())
	assert.True(t, apperr.Is(err, apperr.KindGone))
}

func TestPreviewAndInviteeStatus(t *testing.T) {
	s, out := setupJoin(t)
	ctx := context.Background()
	_, err := s.AddInvitees(ctx, out.Gift.ID.String(), AddInviteesInput{Emails: []string{"a@example.com", "b@example.com"}})
	require.NoError(t, err)

	preview, err := s.Preview(ctx, out.Link.Token)
	require.NoError(t, err)
	assert.Equal(t, out.Gift.ID, preview.Gift.ID)
	assert.EqualValues(t, 2, preview.Gift.InviteeCount)
	assert.Equal(t, out.Link.Token, preview.Token)

	status, err := s.InviteeStatus(ctx, out.Link.Token, " A@Example.com ")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.Equal(t, "a@example.com", status.Invitee.Email)

	status, err = s.InviteeStatus(ctx, out.Link.Token, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, status.Exists)
	assert.Nil(t, status.Invitee)

	_, err = s.InviteeStatus(ctx, out.Link.Token, "bad")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
