package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievecore/sievecore/delivery"
	"github.com/sievecore/sievecore/sieveerr"
)

func TestDuplicateFileintoCollapsesToOneStore(t *testing.T) {
	r := New(0, 0)
	r.AddFileinto("Work", nil)
	r.AddFileinto("Work", []string{"\\Seen"})

	rec := delivery.NewRecorder("postmaster@example.org")
	_, err := r.Execute(rec)
	require.NoError(t, err)

	require.Len(t, rec.Stores, 1)
	assert.Equal(t, "Work", rec.Stores[0].Folder)
	assert.Equal(t, []string{"\\Seen"}, rec.Stores[0].Flags)
}

func TestDiscardCancelledByFileinto(t *testing.T) {
	r := New(0, 0)
	r.AddDiscard()
	r.AddFileinto("Work", nil)

	rec := delivery.NewRecorder("postmaster@example.org")
	report, err := r.Execute(rec)
	require.NoError(t, err)

	assert.Equal(t, 0, rec.Discards)
	require.Len(t, rec.Stores, 1)
	assert.False(t, report.ImplicitKeepPerformed)
}

func TestDiscardAloneSuppressesImplicitKeep(t *testing.T) {
	r := New(0, 0)
	r.AddDiscard()

	rec := delivery.NewRecorder("postmaster@example.org")
	report, err := r.Execute(rec)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Discards)
	assert.Empty(t, rec.Stores)
	assert.False(t, report.ImplicitKeepPerformed)
}

func TestNoActionsProducesImplicitKeep(t *testing.T) {
	r := New(0, 0)

	rec := delivery.NewRecorder("postmaster@example.org")
	report, err := r.Execute(rec)
	require.NoError(t, err)

	require.Len(t, rec.Stores, 1)
	assert.Equal(t, InboxFolder, rec.Stores[0].Folder)
	assert.True(t, report.ImplicitKeepPerformed)
}

func TestRedirectResourceCap(t *testing.T) {
	r := New(1, 0)
	require.NoError(t, r.AddRedirect("a@example.org"))
	err := r.AddRedirect("b@example.org")
	require.Error(t, err)

	// re-adding the same address already counted against the cap is fine
	require.NoError(t, r.AddRedirect("a@example.org"))
}

func TestActionResourceCap(t *testing.T) {
	r := New(0, 2)
	require.NoError(t, r.AddFileinto("A", nil))
	require.NoError(t, r.AddFileinto("B", nil))
	err := r.AddFileinto("C", nil)
	require.Error(t, err)

	var resErr *sieveerr.ResourceError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "action", resErr.Limit)

	// duplicates collapse instead of counting against the cap
	require.NoError(t, r.AddFileinto("A", []string{"\\Seen"}))
}

func TestVacationExecutesAsReply(t *testing.T) {
	r := New(0, 0)
	require.NoError(t, r.AddKeep(nil))
	require.NoError(t, r.AddVacation(VacationArgs{
		Reason:    "I am away until Monday",
		Subject:   "Away",
		Addresses: []string{"me@example.org"},
	}))

	rec := delivery.NewRecorder("postmaster@example.org")
	_, err := r.Execute(rec)
	require.NoError(t, err)

	require.Len(t, rec.Replies, 1)
	assert.Equal(t, "me@example.org", rec.Replies[0].Address)
	assert.Equal(t, "Away", rec.Replies[0].Subject)
	assert.Equal(t, "I am away until Monday", rec.Replies[0].Body)
}

func TestApplyFlagsSetAddRemove(t *testing.T) {
	r := New(0, 0)
	r.ApplyFlags("set", []string{"\\Seen", "\\Flagged"})
	r.ApplyFlags("remove", []string{"\\Flagged"})
	r.ApplyFlags("add", []string{"\\Answered"})
	r.AddKeep(nil)

	rec := delivery.NewRecorder("postmaster@example.org")
	_, err := r.Execute(rec)
	require.NoError(t, err)

	require.Len(t, rec.Stores, 1)
	assert.ElementsMatch(t, []string{"\\Seen", "\\Answered"}, rec.Stores[0].Flags)
}

func TestKeepAndFileintoBothStore(t *testing.T) {
	r := New(0, 0)
	r.AddKeep(nil)
	r.AddFileinto("Archive", nil)

	rec := delivery.NewRecorder("postmaster@example.org")
	_, err := r.Execute(rec)
	require.NoError(t, err)

	require.Len(t, rec.Stores, 2)
}

func TestRejectIsTerminalAndSuppressesImplicitKeep(t *testing.T) {
	r := New(0, 0)
	r.AddReject("not interested")

	rec := delivery.NewRecorder("postmaster@example.org")
	report, err := r.Execute(rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"not interested"}, rec.Rejects)
	assert.False(t, report.ImplicitKeepPerformed)
}
