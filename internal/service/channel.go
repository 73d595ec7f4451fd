package service

import "strings"

const (
	roomChannelPrefix   = "room:"
	directChannelPrefix = "dm:"
)

// RoomChannel is the broadcast key of a room.
func RoomChannel(roomID string) string {
	return roomChannelPrefix + roomID
}

// CanonicalPair orders two user ids lexicographically.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// channelIDEscaper keeps the ":" separator unambiguous for ids that contain it.
var channelIDEscaper = strings.NewReplacer(`\`, `\\`, ":", `\:`)

// DirectChannel is the broadcast key shared by both participants of a DM, independent of argument order.
func DirectChannel(a, b string) string {
	first, second := CanonicalPair(a, b)
	first, second = channelIDEscaper.Replace(first), channelIDEscaper.Replace(second)
	var sb strings.Builder
	sb.Grow(len(directChannelPrefix) + len(first) + len(second) + 1)
	sb.WriteString(directChannelPrefix)
	sb.WriteString(first)
	sb.WriteByte(':')
	sb.WriteString(second)
	return sb.String()
}
