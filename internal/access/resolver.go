// Package access computes which live subscriber connections are entitled to
// see a device event.
package access

import (
	"fmt"

	"TrackHub/internal/user"
)

// UserFinder finds the users whose group memberships intersect a group set.
// Implemented by user.Repo.
type UserFinder interface {
	FindByGroupIDs(ids []int64) ([]user.User, error)
}

// ConnLookup resolves a user to their live subscriber connections.
// Implemented by wsserver.Server.
type ConnLookup interface {
	ConnectionsForUser(userID int64) []string
}

type Resolver struct {
	users UserFinder
	conns ConnLookup
}

func NewResolver(users UserFinder, conns ConnLookup) *Resolver {
	return &Resolver{users: users, conns: conns}
}

// RecipientsFor resolves a device's group set to the deduplicated identities
// of every live connection bound to an entitled user. The result is a
// snapshot taken now; users connecting later miss this event.
func (r *Resolver) RecipientsFor(deviceGroups []int64) ([]string, error) {
	if len(deviceGroups) == 0 {
		return nil, nil
	}
	entitled, err := r.users.FindByGroupIDs(deviceGroups)
	if err != nil {
		return nil, fmt.Errorf("resolve entitled users: %w", err)
	}

	seen := make(map[string]struct{})
	var recipients []string
	for _, u := range entitled {
		for _, id := range r.conns.ConnectionsForUser(u.ID) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			recipients = append(recipients, id)
		}
	}
	return recipients, nil
}
