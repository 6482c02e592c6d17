package memory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/domain"
)

func ts(minute int) *time.Time {
	t := time.Date(2024, 5, 1, 12, minute, 0, 0, time.UTC)
	return &t
}

func input(email, sendID string, at *time.Time) domain.CreateStatusInput {
	return domain.CreateStatusInput{Email: email, SendID: sendID, Timestamp: at}
}

func seed(t *testing.T, repo *StatusRepository, n int) []domain.Status {
	t.Helper()
	out := make([]domain.Status, 0, n)
	for i := 0; i < n; i++ {
		// Timestamps repeat every 7 records so ties are exercised.
		s, err := repo.Create(context.Background(), input(fmt.Sprintf("user%d@example.com", i), fmt.Sprintf("send-%d", i), ts(i%7)))
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func TestCreate_AssignsIdentityAndNormalizes(t *testing.T) {
	repo := NewStatusRepository()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	s, err := repo.Create(context.Background(), domain.CreateStatusInput{
		Email:      "  Alice@Example.COM ",
		SendID:     " s-1 ",
		BounceType: "hard",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, fixed, s.CreatedAt)
	assert.Equal(t, "alice@example.com", s.Email)
	assert.Equal(t, "s-1", s.SendID)
	assert.Equal(t, "hard", s.BounceType)
	assert.Nil(t, s.Timestamp)
	assert.Equal(t, int64(1), s.Seq)
}

func TestCreate_Validation(t *testing.T) {
	repo := NewStatusRepository()
	tests := []struct {
		name string
		in   domain.CreateStatusInput
	}{
		{"missing email", domain.CreateStatusInput{SendID: "s"}},
		{"malformed email", domain.CreateStatusInput{Email: "not-an-email", SendID: "s"}},
		{"missing sendid", domain.CreateStatusInput{Email: "a@example.com"}},
		{"blank sendid", domain.CreateStatusInput{Email: "a@example.com", SendID: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Zero(t, repo.Len())
}

func TestCreate_SendIDNeedNotBeUnique(t *testing.T) {
	repo := NewStatusRepository()
	a, err := repo.Create(context.Background(), input("a@example.com", "same", ts(1)))
	require.NoError(t, err)
	b, err := repo.Create(context.Background(), domain.CreateStatusInput{Email: "a@example.com", SendID: "same", BounceType: "hard", Timestamp: ts(2)})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, repo.Len())
}

func TestFindMany_PagesPartitionAllRecords(t *testing.T) {
	repo := NewStatusRepository()
	seed(t, repo, 23)

	const perPage = 5
	first, err := repo.FindMany(context.Background(), domain.PageQuery{Page: 1, PerPage: perPage})
	require.NoError(t, err)
	assert.Equal(t, int64(23), first.Total)
	assert.Equal(t, 5, first.TotalPages)

	seen := make(map[uuid.UUID]bool)
	var ordered []domain.Status
	for page := 1; page <= first.TotalPages; page++ {
		p, err := repo.FindMany(context.Background(), domain.PageQuery{Page: page, PerPage: perPage})
		require.NoError(t, err)
		for _, s := range p.Items {
			assert.False(t, seen[s.ID], "duplicate %s on page %d", s.ID, page)
			seen[s.ID] = true
		}
		ordered = append(ordered, p.Items...)
	}
	assert.Len(t, seen, 23)

	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		assert.False(t, cur.Timestamp.After(*prev.Timestamp), "timestamp not descending at %d", i)
		if cur.Timestamp.Equal(*prev.Timestamp) {
			assert.Greater(t, prev.Seq, cur.Seq, "tie not broken by newest insert at %d", i)
		}
	}
}

func TestFindMany_LargePerPageIsNotClamped(t *testing.T) {
	repo := NewStatusRepository()
	seed(t, repo, 250)

	const perPage = 200
	seen := make(map[uuid.UUID]bool)
	for page := 1; page <= 2; page++ {
		p, err := repo.FindMany(context.Background(), domain.PageQuery{Page: page, PerPage: perPage})
		require.NoError(t, err)
		assert.Equal(t, perPage, p.PerPage)
		assert.Equal(t, 2, p.TotalPages)
		for _, s := range p.Items {
			seen[s.ID] = true
		}
	}
	assert.Len(t, seen, 250)

	first, err := repo.FindMany(context.Background(), domain.PageQuery{Page: 1, PerPage: perPage})
	require.NoError(t, err)
	assert.Len(t, first.Items, perPage)
}

func TestFindMany_HugePageDoesNotOverflow(t *testing.T) {
	repo := NewStatusRepository()
	seed(t, repo, 3)

	p, err := repo.FindMany(context.Background(), domain.PageQuery{Page: math.MaxInt / 2, PerPage: math.MaxInt / 2})
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.Equal(t, int64(3), p.Total)

	p, err = repo.FindMany(context.Background(), domain.PageQuery{Page: 1, PerPage: math.MaxInt})
	require.NoError(t, err)
	assert.Len(t, p.Items, 3)
	assert.Equal(t, 1, p.TotalPages)
}

func TestFindMany_NullTimestampsFirst(t *testing.T) {
	repo := NewStatusRepository()
	older, err := repo.Create(context.Background(), input("a@example.com", "1", ts(30)))
	require.NoError(t, err)
	noTime, err := repo.Create(context.Background(), input("b@example.com", "2", nil))
	require.NoError(t, err)
	newer, err := repo.Create(context.Background(), input("c@example.com", "3", ts(45)))
	require.NoError(t, err)

	p, err := repo.FindMany(context.Background(), domain.PageQuery{})
	require.NoError(t, err)
	require.Len(t, p.Items, 3)
	assert.Equal(t, []uuid.UUID{noTime.ID, newer.ID, older.ID}, []uuid.UUID{p.Items[0].ID, p.Items[1].ID, p.Items[2].ID})
}

func TestFindMany_Defaults(t *testing.T) {
	repo := NewStatusRepository()
	seed(t, repo, 25)

	p, err := repo.FindMany(context.Background(), domain.PageQuery{Page: 0, PerPage: -3})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, domain.DefaultPerPage, p.PerPage)
	assert.Len(t, p.Items, domain.DefaultPerPage)
	assert.Equal(t, 2, p.TotalPages)
}

func TestFindMany_BeyondLastPageIsEmpty(t *testing.T) {
	repo := NewStatusRepository()
	seed(t, repo, 3)

	p, err := repo.FindMany(context.Background(), domain.PageQuery{Page: 9, PerPage: 2})
	require.NoError(t, err)
	assert.NotNil(t, p.Items)
	assert.Empty(t, p.Items)
	assert.Equal(t, int64(3), p.Total)
	assert.Equal(t, 2, p.TotalPages)
}

func TestFindMany_EmptyStore(t *testing.T) {
	p, err := NewStatusRepository().FindMany(context.Background(), domain.PageQuery{})
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.Zero(t, p.Total)
	assert.Zero(t, p.TotalPages)
}

func TestFindMany_StableAcrossRepeats(t *testing.T) {
	repo := NewStatusRepository()
	seed(t, repo, 40)

	q := domain.PageQuery{Page: 2, PerPage: 15}
	a, err := repo.FindMany(context.Background(), q)
	require.NoError(t, err)
	b, err := repo.FindMany(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUpdate_PartialKeepsIdentity(t *testing.T) {
	repo := NewStatusRepository()
	orig, err := repo.Create(context.Background(), input("a@example.com", "s-1", ts(1)))
	require.NoError(t, err)

	bounce := "hard"
	text := "mailbox full"
	updated, err := repo.Update(context.Background(), orig.ID, domain.UpdateStatusInput{BounceType: &bounce, BounceText: &text})
	require.NoError(t, err)

	assert.Equal(t, orig.ID, updated.ID)
	assert.Equal(t, orig.CreatedAt, updated.CreatedAt)
	assert.Equal(t, orig.Email, updated.Email)
	assert.Equal(t, "hard", updated.BounceType)
	assert.Equal(t, "mailbox full", updated.BounceText)

	found, err := repo.FindByID(context.Background(), orig.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, found)
}

func TestUpdate_Errors(t *testing.T) {
	repo := NewStatusRepository()
	orig, err := repo.Create(context.Background(), input("a@example.com", "s-1", nil))
	require.NoError(t, err)

	bad := "nope"
	_, err = repo.Update(context.Background(), orig.ID, domain.UpdateStatusInput{Email: &bad})
	assert.ErrorIs(t, err, domain.ErrValidation)

	empty := ""
	_, err = repo.Update(context.Background(), orig.ID, domain.UpdateStatusInput{SendID: &empty})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = repo.Update(context.Background(), uuid.New(), domain.UpdateStatusInput{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo := NewStatusRepository()
	s, err := repo.Create(context.Background(), input("a@example.com", "s-1", nil))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(context.Background(), s.ID))
	assert.ErrorIs(t, repo.Delete(context.Background(), s.ID), domain.ErrNotFound)
	_, err = repo.FindByID(context.Background(), s.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	repo := NewStatusRepository()
	s, err := repo.Create(context.Background(), input("a@example.com", "s-1", ts(5)))
	require.NoError(t, err)

	*s.Timestamp = s.Timestamp.Add(time.Hour)

	found, err := repo.FindByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, *ts(5), *found.Timestamp)
}

func TestConcurrentCreates(t *testing.T) {
	repo := NewStatusRepository()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(context.Background(), input(fmt.Sprintf("u%d@example.com", i), "s", nil))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := repo.FindMany(context.Background(), domain.PageQuery{PerPage: 100})
	require.NoError(t, err)
	assert.Len(t, p.Items, 50)
}
