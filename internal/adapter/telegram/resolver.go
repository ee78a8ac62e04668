package telegram

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// parsedIdentifier is what parseChannelLink extracts from a raw user-supplied
// string: either a username/invite-code (Text) or a numeric id (ID), plus an
// optional message id when the link pointed at a specific message.
type parsedIdentifier struct {
	Text      string
	ID        int64
	HasID     bool
	MessageID int
	HasMsgID  bool
}

var channelPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"username_prefix", regexp.MustCompile(`^@([a-zA-Z]\w{3,30}[a-zA-Z0-9])$`)},
	{"username", regexp.MustCompile(`^([a-zA-Z]\w{3,30}[a-zA-Z0-9])$`)},
	// The _message_link variants must be tried before their plainer
	// counterparts: public_link/private_link's trailing (?:/.*)? would
	// otherwise swallow the "/<message-id>" suffix and the message id would
	// never be captured.
	{"message_link", regexp.MustCompile(`^(?:https?://)?(?:www\.)?t(?:elegram)?\.(?:me|dog)/([a-zA-Z]\w{3,30}[a-zA-Z0-9])/(\d+)(?:/.*)?$`)},
	{"public_link", regexp.MustCompile(`^(?:https?://)?(?:www\.)?t(?:elegram)?\.(?:me|dog)/([a-zA-Z]\w{3,30}[a-zA-Z0-9])(?:/.*)?$`)},
	{"private_message_link", regexp.MustCompile(`^(?:https?://)?(?:www\.)?t(?:elegram)?\.(?:me|dog)/c/(\d+)/(\d+)(?:/.*)?$`)},
	{"private_link", regexp.MustCompile(`^(?:https?://)?(?:www\.)?t(?:elegram)?\.(?:me|dog)/c/(\d+)(?:/.*)?$`)},
	{"invite_link", regexp.MustCompile(`^(?:https?://)?(?:www\.)?t(?:elegram)?\.(?:me|dog)/\+([a-zA-Z0-9_-]+)$`)},
	{"invite_code", regexp.MustCompile(`^\+([a-zA-Z0-9_-]+)$`)},
	{"prefixed_invite_link", regexp.MustCompile(`^@(?:https?://)?(?:www\.)?t(?:elegram)?\.(?:me|dog)/\+([a-zA-Z0-9_-]+)$`)},
	{"numeric_id", regexp.MustCompile(`^(-?\d+)$`)},
}

// parseChannelLink recognizes every identifier shape spec §4.1 names:
// @username, bare username, public t.me link, t.me message link, private
// t.me/c/ link (with or without message id), invite links/codes, and a bare
// numeric id.
func parseChannelLink(link string) parsedIdentifier {
	for _, p := range channelPatterns {
		m := p.re.FindStringSubmatch(link)
		if m == nil {
			continue
		}
		switch p.name {
		case "username_prefix", "username", "public_link":
			return parsedIdentifier{Text: m[1]}
		case "message_link":
			msgID, _ := strconv.Atoi(m[2])
			return parsedIdentifier{Text: m[1], MessageID: msgID, HasMsgID: true}
		case "private_link":
			id, _ := strconv.ParseInt(m[1], 10, 64)
			return parsedIdentifier{ID: id, HasID: true}
		case "private_message_link":
			id, _ := strconv.ParseInt(m[1], 10, 64)
			msgID, _ := strconv.Atoi(m[2])
			return parsedIdentifier{ID: id, HasID: true, MessageID: msgID, HasMsgID: true}
		case "invite_link", "invite_code", "prefixed_invite_link":
			return parsedIdentifier{Text: "+" + m[1]}
		case "numeric_id":
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err == nil {
				return parsedIdentifier{ID: id, HasID: true}
			}
		}
	}

	if strings.HasPrefix(link, "@") {
		return parsedIdentifier{Text: strings.TrimPrefix(link, "@")}
	}
	return parsedIdentifier{Text: link}
}

// channelCacheTTL matches the original's one-hour cache_timeout default.
const channelCacheTTL = time.Hour

func newChannelCache() *cache.Cache {
	return cache.New(channelCacheTTL, 10*time.Minute)
}
