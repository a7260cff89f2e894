package postgres

import (
	"context"
	"strings"

	"voiceagents/internal/campaigns"
	"voiceagents/internal/contacts"
)

var _ contacts.Source = (*Store)(nil)

// Contacts reads the campaign's contact list in list order. Lists are
// scoped by workspace so a campaign never reads another tenant's list.
func (s *Store) Contacts(ctx context.Context, c campaigns.Campaign) ([]contacts.Contact, error) {
	if strings.TrimSpace(c.ContactListID) == "" {
		return nil, contacts.ErrNoContactList
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, phone, email, do_not_call
		FROM contacts
		WHERE workspace_id = $1 AND contact_list_id = $2
		ORDER BY position, created_at, id`, c.WorkspaceID, c.ContactListID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contacts.Contact
	for rows.Next() {
		var ct contacts.Contact
		if err := rows.Scan(&ct.Name, &ct.Phone, &ct.Email, &ct.DoNotCall); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}
