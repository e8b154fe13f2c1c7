package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Line
	}{
		{"command and argument", "name GREEN", Line{"name", "GREEN"}},
		{"trailing newline and carriage return", "echo hi\r\n", Line{"echo", "hi"}},
		{"argument keeps inner spaces", "echo  hello world ", Line{"echo", "hello world"}},
		{"command only", "keepalive", Line{"keepalive", ""}},
		{"embedded null bytes removed", "na\x00me X\x00\x00", Line{"name", "X"}},
		{"whitespace only", "  \t ", Line{}},
		{"null bytes only", "\x00\x00\x00", Line{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLine([]byte(tt.raw)))
		})
	}
}

func TestSplitLines(t *testing.T) {
	t.Run("empty chunk has no lines", func(t *testing.T) {
		assert.Nil(t, SplitLines(nil))
	})

	t.Run("terminated lines", func(t *testing.T) {
		got := SplitLines([]byte("a\nb\n"))
		assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, got)
	})

	t.Run("blank lines are kept", func(t *testing.T) {
		got := SplitLines([]byte("a\n\nb\n"))
		assert.Len(t, got, 3)
		assert.Empty(t, got[1])
	})

	t.Run("unterminated fragment is its own line", func(t *testing.T) {
		got := SplitLines([]byte("a\nfrag"))
		assert.Equal(t, [][]byte{[]byte("a"), []byte("frag")}, got)
	})
}

func TestTransition_AwaitingHandshake(t *testing.T) {
	t.Run("name establishes with count one", func(t *testing.T) {
		out := Transition(Initial(), ParseLine([]byte("name GREEN")), nil)
		assert.Equal(t, State{Phase: Established, Peer: "GREEN", Count: 1}, out.Next)
		assert.NoError(t, out.Violation)
		assert.Empty(t, out.Replies)
	})

	t.Run("blank line is ignored without diagnostic", func(t *testing.T) {
		out := Transition(Initial(), ParseLine([]byte(" \x00 ")), nil)
		assert.Equal(t, Initial(), out.Next)
		assert.NoError(t, out.Violation)
	})

	t.Run("other input is a violation", func(t *testing.T) {
		out := Transition(Initial(), ParseLine([]byte("garbage")), EchoReplies)
		assert.Equal(t, Initial(), out.Next)
		require.Error(t, out.Violation)
		assert.True(t, errors.Is(out.Violation, ErrProtocolViolation))
		assert.Empty(t, out.Replies)

		var ve *ViolationError
		require.ErrorAs(t, out.Violation, &ve)
		assert.Equal(t, "garbage", ve.Line.Command)
	})

	t.Run("name without value is a violation", func(t *testing.T) {
		out := Transition(Initial(), ParseLine([]byte("name")), nil)
		assert.Equal(t, AwaitingHandshake, out.Next.Phase)
		assert.ErrorIs(t, out.Violation, ErrProtocolViolation)
	})
}

func TestTransition_Established(t *testing.T) {
	s := State{Phase: Established, Peer: "X", Count: 1}

	t.Run("any line increments the count", func(t *testing.T) {
		out := Transition(s, ParseLine([]byte("whatever")), nil)
		assert.Equal(t, State{Phase: Established, Peer: "X", Count: 2}, out.Next)
	})

	t.Run("a second name does not rename the peer", func(t *testing.T) {
		out := Transition(s, ParseLine([]byte("name Y")), nil)
		assert.Equal(t, "X", out.Next.Peer)
		assert.Equal(t, 2, out.Next.Count)
	})

	t.Run("policy replies are returned", func(t *testing.T) {
		out := Transition(s, ParseLine([]byte("echo ping")), EchoReplies)
		assert.Equal(t, [][]byte{[]byte("ping\n")}, out.Replies)
	})
}

func TestScenario_NameThenTwoLines(t *testing.T) {
	st := Initial()
	for _, raw := range SplitLines([]byte("name GREEN\necho one\nkeepalive\n")) {
		out := Transition(st, ParseLine(raw), nil)
		require.NoError(t, out.Violation)
		st = out.Next
	}

	assert.Equal(t, State{Phase: Established, Peer: "GREEN", Count: 3}, st)
	assert.Equal(t, `Established("GREEN", 3)`, st.String())
}

func TestScenario_GarbageThenName(t *testing.T) {
	st := Initial()

	out := Transition(st, ParseLine([]byte("garbage")), nil)
	assert.ErrorIs(t, out.Violation, ErrProtocolViolation)
	st = out.Next
	assert.Equal(t, AwaitingHandshake, st.Phase)

	out = Transition(st, ParseLine([]byte("name X")), nil)
	assert.NoError(t, out.Violation)
	assert.Equal(t, State{Phase: Established, Peer: "X", Count: 1}, out.Next)
}

func TestPolicies(t *testing.T) {
	s := State{Phase: Established, Peer: "BLUE", Count: 3}

	t.Run("no replies", func(t *testing.T) {
		assert.Nil(t, NoReplies(s, Line{Command: "echo", Argument: "x"}))
	})

	t.Run("echo replies", func(t *testing.T) {
		assert.Equal(t, [][]byte{[]byte("keepalive\n")}, EchoReplies(s, Line{Command: "keepalive"}))
		assert.Nil(t, EchoReplies(s, Line{Command: "sleep", Argument: "1"}))
	})

	t.Run("greet at count", func(t *testing.T) {
		assert.Equal(t, [][]byte{[]byte("hello BLUE\n")}, GreetAt(3)(s, Line{}))
		assert.Nil(t, GreetAt(2)(s, Line{}))
		assert.Nil(t, GreetAt(0)(s, Line{}))
	})

	t.Run("chain concatenates in order", func(t *testing.T) {
		p := Chain(EchoReplies, nil, GreetAt(3))
		got := p(s, Line{Command: "echo", Argument: "hi"})
		assert.Equal(t, [][]byte{[]byte("hi\n"), []byte("hello BLUE\n")}, got)
	})
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "AwaitingHandshake", AwaitingHandshake.String())
	assert.Equal(t, "Established", Established.String())
	assert.Equal(t, "Unknown", Phase(9).String())
	assert.Equal(t, "AwaitingHandshake", Initial().String())
}
