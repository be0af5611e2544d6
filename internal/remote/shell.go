package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	pbfs "pushback/internal/fs"
	"pushback/internal/pushback"
)

// ExecShell runs remote scripts through the ssh binary, so the user's ssh
// config, agent and ControlMaster sockets all apply.
type ExecShell struct {
	Binary  string
	User    string
	Host    string
	Options []string
}

// Run executes script as "ssh OPTIONS user@host SCRIPT".
func (s *ExecShell) Run(ctx context.Context, script string) (string, error) {
	bin := s.Binary
	if bin == "" {
		bin = "ssh"
	}
	args := append(append([]string{}, s.Options...), s.User+"@"+s.Host, script)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %v", pushback.ErrInterrupted, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), fmt.Errorf("ssh exited with status %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
	}
	return "", fmt.Errorf("failed to run ssh: %w", err)
}

const dialTimeout = 15 * time.Second

// NativeShell runs remote scripts with the built-in ssh client. It
// authenticates with the running ssh-agent and an optional identity file and
// verifies the host against ~/.ssh/known_hosts. The connection is opened on
// first use and reused until Close.
type NativeShell struct {
	addr   string
	config *ssh.ClientConfig

	mu        sync.Mutex
	client    *ssh.Client
	agentConn net.Conn
}

// NewNativeShell prepares a client for user@host:port. No connection is made yet.
func NewNativeShell(user, host string, port int, identityFile string) (*NativeShell, error) {
	var auths []ssh.AuthMethod
	var agentConn net.Conn

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			agentConn = conn
			auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if identityFile != "" {
		path, err := pbfs.ExpandHome(identityFile)
		if err != nil {
			return nil, err
		}
		key, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing identity file %s: %w", identityFile, err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}
	if len(auths) == 0 {
		return nil, fmt.Errorf("no ssh credentials for %s: start an ssh-agent or set identity_file", host)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}
	hostKeys, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: hostKeys,
		Timeout:         dialTimeout,
	}
	s := newNativeShell(net.JoinHostPort(host, strconv.Itoa(port)), config)
	s.agentConn = agentConn
	return s, nil
}

func newNativeShell(addr string, config *ssh.ClientConfig) *NativeShell {
	return &NativeShell{addr: addr, config: config}
}

func (s *NativeShell) connect(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", s.addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, s.addr, s.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", s.addr, err)
	}
	s.client = ssh.NewClient(c, chans, reqs)
	return s.client, nil
}

// Run executes script in a new session and returns its stdout. Cancelling
// ctx closes the session.
func (s *NativeShell) Run(ctx context.Context, script string) (string, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening ssh session: %w", err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.Output(script)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return "", fmt.Errorf("%w: %v", pushback.ErrInterrupted, ctx.Err())
	case res := <-done:
		if res.err != nil {
			var exitErr *ssh.ExitError
			if errors.As(res.err, &exitErr) {
				return string(res.out), fmt.Errorf("remote command exited with status %d", exitErr.ExitStatus())
			}
			return "", fmt.Errorf("running remote command: %w", res.err)
		}
		return string(res.out), nil
	}
}

// Close closes the ssh connection and the agent socket.
func (s *NativeShell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
		s.client = nil
	}
	if s.agentConn != nil {
		errs = append(errs, s.agentConn.Close())
		s.agentConn = nil
	}
	return errors.Join(errs...)
}
