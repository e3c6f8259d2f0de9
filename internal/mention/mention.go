// Package mention extracts @mentions from message text and resolves them
// against a workspace directory.
package mention

import (
	"context"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// An @ preceded by a word character or another @ is part of an address, not a mention.
var tokenPattern = regexp.MustCompile(`(?:^|[^\w@])@(?:"([^"\n]{1,80})"|([\w][\w.\-]{0,63}))`)

// Member is one resolvable entry of a workspace directory.
type Member struct {
	UserID      snowflake.ID
	Handle      string
	DisplayName string
}

// Directory lists the users a mention may resolve to.
type Directory interface {
	ListMembers(ctx context.Context, workspaceID snowflake.ID) ([]Member, error)
}

// ExtractTokens returns raw mention strings in order of appearance.
func ExtractTokens(content string) []string {
	matches := tokenPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		token := m[1]
		if token == "" {
			token = strings.TrimRight(m[2], ".-")
		}
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// Resolve maps tokens to user ids. Matching is case-insensitive on handle or
// display name. Unknown tokens are dropped and the sender is never returned.
func Resolve(tokens []string, directory []Member, senderID snowflake.ID) []snowflake.ID {
	if len(tokens) == 0 || len(directory) == 0 {
		return nil
	}

	index := make(map[string]snowflake.ID, len(directory)*2)
	for _, member := range directory {
		if handle := normalize(member.Handle); handle != "" {
			index[handle] = member.UserID
		}
		if name := normalize(member.DisplayName); name != "" {
			if _, taken := index[name]; !taken {
				index[name] = member.UserID
			}
		}
	}

	seen := make(map[snowflake.ID]struct{}, len(tokens))
	resolved := make([]snowflake.ID, 0, len(tokens))
	for _, token := range tokens {
		userID, ok := index[normalize(token)]
		if !ok || userID == senderID {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		resolved = append(resolved, userID)
	}
	return resolved
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
