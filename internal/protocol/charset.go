package protocol

import (
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// parseMime splits a media type into its lower-cased type and parameters.
// Unparseable values keep their text as the type.
func parseMime(value string) (string, map[string]string) {
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		mediaType, _, _ = strings.Cut(value, ";")
		return strings.ToLower(strings.TrimSpace(mediaType)), map[string]string{}
	}
	return mediaType, params
}

// isText reports whether mediaType carries text.
func isText(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/")
}

// decodeCharset converts body from charset to UTF-8. An empty charset
// means UTF-8.
func decodeCharset(body []byte, charset string) ([]byte, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return body, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("header declared unknown encoding %s", charset)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("could not decode response body using %s encoding declared in header: %w", charset, err)
	}
	return out, nil
}

// decodeUTF8OrLatin1 returns body unchanged when it is valid UTF-8 and
// transcodes it from ISO-8859-1 otherwise.
func decodeUTF8OrLatin1(body []byte) []byte {
	if utf8.Valid(body) {
		return body
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return out
}
