package access

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"TrackHub/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserFinder struct {
	// membership per user id
	memberships map[int64][]int64
	err         error
}

func (f *fakeUserFinder) FindByGroupIDs(ids []int64) ([]user.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []user.User
	for uid, groups := range f.memberships {
		for _, g := range groups {
			if _, ok := want[g]; ok {
				out = append(out, user.User{ID: uid})
				break
			}
		}
	}
	return out, nil
}

type fakeConnLookup struct {
	conns map[int64][]string
}

func (f *fakeConnLookup) ConnectionsForUser(userID int64) []string {
	return f.conns[userID]
}

func TestRecipientsForEmptyGroupSet(t *testing.T) {
	r := NewResolver(&fakeUserFinder{}, &fakeConnLookup{})
	got, err := r.RecipientsFor(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecipientsForLookupError(t *testing.T) {
	r := NewResolver(&fakeUserFinder{err: errors.New("db down")}, &fakeConnLookup{})
	_, err := r.RecipientsFor([]int64{1})
	assert.Error(t, err)
}

func TestRecipientsForBasic(t *testing.T) {
	users := &fakeUserFinder{memberships: map[int64][]int64{
		1: {10, 20}, // intersects
		2: {30},     // does not
		3: {20},     // intersects, but offline
	}}
	conns := &fakeConnLookup{conns: map[int64][]string{
		1: {"conn-a", "conn-b"}, // two browser tabs
		2: {"conn-c"},
	}}
	r := NewResolver(users, conns)

	got, err := r.RecipientsFor([]int64{20})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conn-a", "conn-b"}, got)
}

// Property: for random group assignments, the recipient set contains exactly
// the connections of users whose group set intersects the device's, deduped.
func TestRecipientsForIntersectionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		users := &fakeUserFinder{memberships: make(map[int64][]int64)}
		conns := &fakeConnLookup{conns: make(map[int64][]string)}

		nUsers := 1 + rng.Intn(20)
		for uid := int64(1); uid <= int64(nUsers); uid++ {
			var groups []int64
			for g := int64(1); g <= 8; g++ {
				if rng.Intn(3) == 0 {
					groups = append(groups, g)
				}
			}
			users.memberships[uid] = groups
			for c := 0; c < rng.Intn(3); c++ {
				conns.conns[uid] = append(conns.conns[uid], fmt.Sprintf("u%d-c%d", uid, c))
			}
		}

		var deviceGroups []int64
		for g := int64(1); g <= 8; g++ {
			if rng.Intn(3) == 0 {
				deviceGroups = append(deviceGroups, g)
			}
		}

		r := NewResolver(users, conns)
		got, err := r.RecipientsFor(deviceGroups)
		require.NoError(t, err)

		want := make(map[string]struct{})
		for uid, groups := range users.memberships {
			if !intersects(groups, deviceGroups) {
				continue
			}
			for _, id := range conns.conns[uid] {
				want[id] = struct{}{}
			}
		}

		assert.Len(t, got, len(want), "trial %d", trial)
		for _, id := range got {
			assert.Contains(t, want, id, "trial %d", trial)
		}
	}
}

func intersects(a, b []int64) bool {
	set := make(map[int64]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
