package usecase

import (
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"transcript-aggregator/internal/domain"
)

const (
	maxDirectoryNameLength = 1024
	maxDirectorySegments   = 254
)

// encodeKey escapes everything except RFC 3986 unreserved characters so a
// conversation id maps to exactly one storage path segment and file name.
func encodeKey(key string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// decodeSegment form-decodes a stored directory name into an identifier.
// '+' becomes a space and %XX escapes are decoded; a '%' that does not start
// a valid escape is kept as is.
func decodeSegment(segment string) string {
	segment = strings.TrimSuffix(segment, domain.PathSeparator)
	if !strings.ContainsAny(segment, "%+") {
		return segment
	}
	var b strings.Builder
	b.Grow(len(segment))
	for i := 0; i < len(segment); i++ {
		switch c := segment[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(segment) && isHex(segment[i+1]) && isHex(segment[i+2]):
			b.WriteByte(unhex(segment[i+1])<<4 | unhex(segment[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func validateDirectoryName(name string) error {
	if strings.TrimSpace(name) == "" {
		return newError(ErrorValidation, "empty_directory_name", nil)
	}
	if utf8.RuneCountInString(name) > maxDirectoryNameLength {
		return newError(ErrorValidation, "directory_name_too_long", fmt.Errorf("%d characters", utf8.RuneCountInString(name)))
	}
	if strings.Count(name, domain.PathSeparator)+1 > maxDirectorySegments {
		return newError(ErrorValidation, "too_many_segments", nil)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return newError(ErrorValidation, "invalid_character", fmt.Errorf("control character %U in %q", r, name))
		}
	}
	return nil
}

// conversationDir returns the storage prefix of a conversation under
// channel. Both the decoded channel id and the encoded conversation id must
// be valid directory names.
func conversationDir(channel domain.DirRef, channelID, conversationID string) (string, error) {
	convID := encodeKey(conversationID)
	if err := validateDirectoryName(channelID); err != nil {
		return "", err
	}
	if err := validateDirectoryName(convID); err != nil {
		return "", err
	}
	return channel.Prefix + convID + domain.PathSeparator, nil
}

func transcriptName(conversationID string) string {
	return encodeKey(conversationID) + domain.TranscriptExtension
}

func extension(name string) string {
	return path.Ext(name)
}
