// Package dispatch delivers fired scheduled replies to their conversation.
//
// Drivers:
//   - telegram: Bot API sendMessage, rate limited, long replies split
//   - log: writes the reply to the logger (dry runs)
package dispatch
