package storage

import (
	"fmt"
	"regexp"
	"strings"

	"Seshat/internal/models"
)

// MaxRoomNameLength matches the name column width.
const MaxRoomNameLength = 100

var (
	roomNamePattern = regexp.MustCompile(`^\w+$`)
	// all-digit references address rooms by id, so they are never names
	roomIDPattern = regexp.MustCompile(`^\d+$`)
)

func validateRoomName(name string) error {
	if len(name) == 0 || len(name) > MaxRoomNameLength || !roomNamePattern.MatchString(name) || roomIDPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomName, name)
	}
	return nil
}

func validateAuthor(author models.Identity) error {
	if author.Anonymous() || author.Username == "" {
		return ErrInvalidUser
	}
	return nil
}

func normalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

// privateKey identifies the unordered user pair of a private room.
func privateKey(a, b int64) (string, error) {
	if a <= 0 || b <= 0 || a == b {
		return "", ErrInvalidParticipants
	}
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
