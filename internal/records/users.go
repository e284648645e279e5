package records

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
)

// MinPasswordLength is the shortest password SaveUser accepts.
const MinPasswordLength = 6

func userID(u User) int64 { return u.ID }

// FoldUsername returns the comparison form of a username: trimmed, NFC
// normalized and case folded.
func FoldUsername(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// Users returns every user account, including deactivated ones.
func (s *Store) Users(ctx context.Context) []User {
	return list[User](ctx, s, KeyUsers)
}

// SaveUser inserts or replaces a user. password is required for new users;
// for existing users an empty password keeps the stored hash. Usernames are
// unique, ignoring case, among active users.
func (s *Store) SaveUser(ctx context.Context, u User, password string) (User, error) {
	err := s.update(ctx, func(t *txn) error {
		u.Username = norm.NFC.String(strings.TrimSpace(u.Username))
		if u.Username == "" {
			return invalidf("username is required")
		}
		if u.Role == "" {
			u.Role = RoleViewer
		}
		if !u.Role.valid() {
			return invalidf("unknown role %q", u.Role)
		}
		if password != "" && len([]rune(password)) < MinPasswordLength {
			return invalidf("password must be at least %d characters", MinPasswordLength)
		}

		var users []User
		if err := t.load(KeyUsers, &users); err != nil {
			return err
		}

		now := s.timestamp()
		action := ActionUpdate
		if i := indexOf(users, u.ID, userID); u.ID != 0 && i >= 0 {
			prev := users[i]
			u.CreatedAt = prev.CreatedAt
			u.LastLogin = prev.LastLogin
			if password == "" {
				u.PasswordHash = prev.PasswordHash
			}
		} else {
			action = ActionCreate
			if password == "" {
				return invalidf("password is required for a new user")
			}
			if err := assignID(t, CounterUser, &u.ID); err != nil {
				return err
			}
			u.IsActive = true
			u.CreatedAt = now
		}
		if password != "" {
			hash, err := HashPassword(password)
			if err != nil {
				return err
			}
			u.PasswordHash = hash
		}
		u.UpdatedAt = now

		if u.IsActive {
			folded := FoldUsername(u.Username)
			for _, other := range users {
				if other.ID != u.ID && other.IsActive && FoldUsername(other.Username) == folded {
					return &DuplicateKeyError{
						Collection:  KeyUsers,
						Field:       "username",
						Value:       u.Username,
						ConflictID:  other.ID,
						ConflictRef: other.Username,
					}
				}
			}
		}

		if err := t.put(KeyUsers, upsert(users, u, userID)); err != nil {
			return err
		}
		return t.record(action, "user", fmt.Sprint(u.ID),
			fmt.Sprintf("%s user %s (%s)", verb(action), u.Username, u.Role))
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// DeleteUser deactivates a user. If that user is signed in, the session is
// cleared in the same write.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.update(ctx, func(t *txn) error {
		var users []User
		if err := t.load(KeyUsers, &users); err != nil {
			return err
		}
		i := indexOf(users, id, userID)
		if i < 0 {
			return notFoundf("user %d", id)
		}
		users[i].IsActive = false
		users[i].UpdatedAt = s.timestamp()
		if err := t.put(KeyUsers, users); err != nil {
			return err
		}
		if err := t.record(ActionDelete, "user", fmt.Sprint(id),
			fmt.Sprintf("Deactivated user %s", users[i].Username)); err != nil {
			return err
		}

		var sess *Session
		if err := t.load(KeyCurrentUser, &sess); err != nil {
			return err
		}
		if sess != nil && sess.UserID == id {
			return t.put(KeyCurrentUser, nil)
		}
		return nil
	})
}

// Authenticate checks credentials against active users and, on success,
// records the session and a login audit entry. Unknown users, inactive
// users and wrong passwords all return ErrAuthFailed.
func (s *Store) Authenticate(ctx context.Context, username, password string) (Session, error) {
	var sess Session
	err := s.update(ctx, func(t *txn) error {
		var users []User
		if err := t.load(KeyUsers, &users); err != nil {
			return err
		}
		folded := FoldUsername(username)
		i := -1
		for j, u := range users {
			if u.IsActive && FoldUsername(u.Username) == folded {
				i = j
				break
			}
		}
		if i < 0 || !VerifyPassword(users[i].PasswordHash, password) {
			return ErrAuthFailed
		}

		now := s.timestamp()
		users[i].LastLogin = &now
		sess = Session{
			UserID:   users[i].ID,
			Username: users[i].Username,
			Role:     users[i].Role,
			Token:    s.newID(),
			LoginAt:  now,
		}
		if err := t.put(KeyUsers, users); err != nil {
			return err
		}
		if err := t.put(KeyCurrentUser, sess); err != nil {
			return err
		}
		return t.record(ActionLogin, "user", fmt.Sprint(sess.UserID),
			fmt.Sprintf("User %s logged in", sess.Username))
	})
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Logout clears the session. Without a session it does nothing.
func (s *Store) Logout(ctx context.Context) error {
	return s.update(ctx, func(t *txn) error {
		var sess *Session
		if err := t.load(KeyCurrentUser, &sess); err != nil {
			return err
		}
		if sess == nil {
			return nil
		}
		if err := t.record(ActionLogout, "user", fmt.Sprint(sess.UserID),
			fmt.Sprintf("User %s logged out", sess.Username)); err != nil {
			return err
		}
		return t.put(KeyCurrentUser, nil)
	})
}

// CurrentUser returns the signed-in session, if any.
func (s *Store) CurrentUser(ctx context.Context) (Session, bool) {
	sess := storage.GetOr[*Session](ctx, s.kv, KeyCurrentUser, nil)
	if sess == nil {
		return Session{}, false
	}
	return *sess, true
}
