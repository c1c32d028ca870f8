package notify

import (
	"context"
	"strings"
)

// AdminSource lists the addresses that receive admin notifications.
type AdminSource interface {
	AdminEmails(ctx context.Context) ([]string, error)
}

type AdminLister interface {
	ListAdminEmails(ctx context.Context) ([]string, error)
}

// AdminDirectory merges admin users with statically configured addresses.
type AdminDirectory struct {
	users AdminLister
	extra []string
}

func NewAdminDirectory(users AdminLister, extra []string) *AdminDirectory {
	return &AdminDirectory{users: users, extra: extra}
}

// AdminEmails returns de-duplicated addresses, users first.
func (d *AdminDirectory) AdminEmails(ctx context.Context) ([]string, error) {
	var all []string
	if d.users != nil {
		emails, err := d.users.ListAdminEmails(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, emails...)
	}
	all = append(all, d.extra...)

	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, e := range all {
		e = strings.TrimSpace(e)
		k := recipientKey(e)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}
