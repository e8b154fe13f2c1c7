package peersim

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, script []string, linger time.Duration) *Server {
	t.Helper()
	s := &Server{Name: "test", Addr: "127.0.0.1:0", Script: script, Linger: linger}
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

func TestServer_PlaysScriptAndRecordsReplies(t *testing.T) {
	s := startServer(t, []string{"name GREEN", "echo hi"}, 2*time.Second)

	conn, err := net.Dial("tcp", s.Address())
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "name GREEN\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo hi\n", line)

	_, err = r.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF, "peer half-closes after the script")

	_, err = conn.Write([]byte("hi\n"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		ids := s.Sessions()
		return len(ids) == 1 && string(s.Received(ids[0])) == "hi\n"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_SleepPausesPeer(t *testing.T) {
	s := startServer(t, []string{"sleep 0.2", "exit"}, 50*time.Millisecond)

	conn, err := net.Dial("tcp", s.Address())
	require.NoError(t, err)
	defer conn.Close()

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "sleep 0.2\n", line)

	start := time.Now()
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "exit\n", line)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestServer_StartTwice(t *testing.T) {
	s := startServer(t, nil, 0)
	assert.Error(t, s.Start())
}

func TestServer_StopWithOpenSession(t *testing.T) {
	s := &Server{Addr: "127.0.0.1:0", Script: []string{"sleep 10"}}
	require.NoError(t, s.Start())

	conn, err := net.Dial("tcp", s.Address())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return len(s.Sessions()) == 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt a sleeping session")
	}

	assert.Nil(t, s.Received("unknown"))
}

func TestSleepDuration(t *testing.T) {
	tests := []struct {
		line string
		want time.Duration
		ok   bool
	}{
		{"sleep 1", time.Second, true},
		{"sleep 0.25", 250 * time.Millisecond, true},
		{"  sleep 2  ", 2 * time.Second, true},
		{"sleep", 0, false},
		{"sleep -1", 0, false},
		{"sleep soon", 0, false},
		{"echo sleep 1", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := SleepDuration(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDemoScript(t *testing.T) {
	script := DemoScript("BLUE")
	require.NotEmpty(t, script)
	assert.Equal(t, "name BLUE", script[0])
	assert.Equal(t, "exit", script[len(script)-1])
}
