package commands

import (
	"fmt"
	"strconv"
	"strings"

	"zvonok/internal/models"
	"zvonok/internal/storage"
)

// AddUser seeds a user row from an "id:name[:profilePic]" spec. User
// identities are issued elsewhere; this only records the display
// attributes the relay denormalizes onto delivered messages.
func AddUser(spec string, store *storage.BboltStorage) error {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return fmt.Errorf("invalid user spec %q, expected id:name[:profilePic]", spec)
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid user id %q, expected a positive number", parts[0])
	}

	user := models.User{ID: id, Name: parts[1]}
	if len(parts) == 3 {
		user.ProfilePic = parts[2]
	}

	if err := store.UpsertUser(user); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}

	fmt.Printf("User %d (%s) stored\n", user.ID, user.Name)
	return nil
}
