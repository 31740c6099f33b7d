// Copyright (c) 2025 Port Reclaim Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package facility

import (
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePIDLines(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want []int
	}{
		{
			name: "single pid",
			out:  "1234\n",
			want: []int{1234},
		},
		{
			name: "multiple pids",
			out:  "1234\n5678\n",
			want: []int{1234, 5678},
		},
		{
			name: "empty output",
			out:  "",
			want: nil,
		},
		{
			name: "garbage ignored",
			out:  "1234\nnot-a-pid\n-5\n",
			want: []int{1234},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parsePIDLines(tt.out))
		})
	}
}

func TestParseSSPIDs(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want []int
	}{
		{
			name: "single listener",
			out:  `LISTEN 0 511 127.0.0.1:5278 0.0.0.0:* users:(("node",pid=4321,fd=23))`,
			want: []int{4321},
		},
		{
			name: "multiple sockets same pid",
			out: `LISTEN 0 511 0.0.0.0:3101 0.0.0.0:* users:(("vite",pid=777,fd=20))
LISTEN 0 511 [::]:3101 [::]:* users:(("vite",pid=777,fd=21))`,
			want: []int{777},
		},
		{
			name: "two holders",
			out: `LISTEN 0 128 0.0.0.0:5279 0.0.0.0:* users:(("gunicorn",pid=100,fd=5),("gunicorn",pid=101,fd=5))`,
			want: []int{100, 101},
		},
		{
			name: "no process column without privileges",
			out:  `LISTEN 0 128 0.0.0.0:5279 0.0.0.0:*`,
			want: nil,
		},
		{
			name: "empty output",
			out:  "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSSPIDs(tt.out))
		})
	}
}

func TestSignalKillerTerminatesProcess(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	k := NewSignalKiller()
	k.SetGrace(200 * time.Millisecond)
	require.NoError(t, k.Kill(pid))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process survived Kill")
	}
}

func TestSignalKillerRefusesOwnProcessGroup(t *testing.T) {
	// A child spawned without Setpgid inherits our process group; even
	// though it is a legitimate foreign pid, the guard must refuse it.
	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	k := NewSignalKiller()
	err := k.Kill(cmd.Process.Pid)
	assert.ErrorIs(t, err, ErrSelfTarget)
}

func TestSignalKillerRefusesSelf(t *testing.T) {
	k := NewSignalKiller()

	err := k.Kill(os.Getpid())
	assert.ErrorIs(t, err, ErrSelfTarget)

	if ppid := os.Getppid(); ppid > 1 {
		assert.ErrorIs(t, k.Kill(ppid), ErrSelfTarget)
	}
}

func TestSignalKillerRejectsInvalidPID(t *testing.T) {
	k := NewSignalKiller()
	assert.Error(t, k.Kill(0))
	assert.Error(t, k.Kill(-1))
	assert.Error(t, k.Kill(1))
}

func TestLookupNames(t *testing.T) {
	assert.Equal(t, "lsof", NewLsofLookup().Name())
	assert.Equal(t, "ss", NewSSLookup().Name())
}
