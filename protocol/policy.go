package protocol

import "fmt"

// ReplyPolicy decides which replies an established connection sends for a line.
// It receives the state after the transition and must not retain the slices it
// returns once they have been handed back.
type ReplyPolicy func(s State, line Line) [][]byte

// NoReplies never replies.
func NoReplies(State, Line) [][]byte {
	return nil
}

// EchoReplies answers "echo <text>" with "<text>\n" and "keepalive" with
// "keepalive\n". Every other line is consumed silently.
func EchoReplies(_ State, line Line) [][]byte {
	switch line.Command {
	case "echo":
		return [][]byte{[]byte(line.Argument + "\n")}
	case "keepalive":
		return [][]byte{[]byte("keepalive\n")}
	default:
		return nil
	}
}

// GreetAt returns a policy that sends "hello <peer>\n" once, when the message
// count reaches n. A non-positive n disables the greeting.
func GreetAt(n int) ReplyPolicy {
	return func(s State, _ Line) [][]byte {
		if n <= 0 || s.Count != n {
			return nil
		}

		return [][]byte{[]byte(fmt.Sprintf("hello %s\n", s.Peer))}
	}
}

// Chain combines policies; replies are concatenated in argument order.
func Chain(policies ...ReplyPolicy) ReplyPolicy {
	return func(s State, line Line) [][]byte {
		var out [][]byte
		for _, p := range policies {
			if p == nil {
				continue
			}

			out = append(out, p(s, line)...)
		}

		return out
	}
}
