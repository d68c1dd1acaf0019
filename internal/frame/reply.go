package frame

import "strings"

// Replies are raw bytes written until the connection is closed, they carry no length prefix.
const (
	ReplyInvalidQuery = "Error: Invalid DNS query"
	ReplyNotFound     = "Error: Not found"
	ReplyServerError  = "Error: Server error"

	replyErrorPrefix = "Error"
)

// IsErrorReply reports whether a reply is an error message rather than an address.
func IsErrorReply(reply string) bool {
	return strings.HasPrefix(reply, replyErrorPrefix)
}
