// Package identity validates participant identities and resolves their
// forum access group.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// DefaultGroup is assigned to identities the forum does not know.
const DefaultGroup = "guest"

// legacyGUID is the placeholder old clients report instead of a real id.
const legacyGUID = "GUID_ELGAN"

// ErrInvalidIdentity rejects empty or placeholder identities.
var ErrInvalidIdentity = errors.New("invalid identity")

// Valid reports whether id is a usable identity: not the legacy placeholder
// and in the hyphenated GUID form.
func Valid(id string) bool {
	return id != legacyGUID && strings.Contains(id, "-")
}

// StaticResolver assigns one group to everyone.
type StaticResolver struct {
	Group string
}

func (r StaticResolver) AccessGroup(ctx context.Context, id string) (string, error) {
	if r.Group == "" {
		return DefaultGroup, nil
	}
	return r.Group, nil
}

const forumGroupQuery = `
	SELECT COALESCE(g.group_name, '')
	FROM smf_mohaa_identities i
	JOIN smf_members m ON m.id_member = i.id_member
	LEFT JOIN smf_membergroups g ON g.id_group = m.id_group
	WHERE i.player_guid = ?
	LIMIT 1`

// ForumResolver reads access groups from the SMF forum database.
type ForumResolver struct {
	db           *sql.DB
	defaultGroup string
}

// OpenForum connects to the forum MySQL database.
func OpenForum(dsn string) (*ForumResolver, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open forum db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping forum db: %w", err)
	}
	return NewForumResolver(db, DefaultGroup), nil
}

// NewForumResolver wraps an open forum database handle.
func NewForumResolver(db *sql.DB, defaultGroup string) *ForumResolver {
	if defaultGroup == "" {
		defaultGroup = DefaultGroup
	}
	return &ForumResolver{db: db, defaultGroup: defaultGroup}
}

// AccessGroup returns the member group linked to the identity, or the default
// group when the identity is not linked to a member.
func (r *ForumResolver) AccessGroup(ctx context.Context, id string) (string, error) {
	if !Valid(id) {
		return "", ErrInvalidIdentity
	}
	var group string
	err := r.db.QueryRowContext(ctx, forumGroupQuery, id).Scan(&group)
	if errors.Is(err, sql.ErrNoRows) {
		return r.defaultGroup, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup access group: %w", err)
	}
	if group == "" {
		return r.defaultGroup, nil
	}
	return group, nil
}

func (r *ForumResolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
