package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConfig describes the lab host that owns a board's serial port.
type SSHConfig struct {
	Hostname string
	Port     int
	Username string
	Password string
	Keyfile  string

	// SerialPort is the device node on the remote host, e.g.
	// /dev/ttyUSB0.
	SerialPort string
	BaudRate   int
}

// SSH reaches a board through a remote host. The serial port is
// configured with stty once, then read with a long-lived cat session
// and written with echo redirections.
type SSH struct {
	cfg    SSHConfig
	client *ssh.Client

	mu     sync.Mutex
	closed bool
}

// NewSSH dials the remote host and prepares its serial port for raw
// console traffic.
func NewSSH(ctx context.Context, cfg SSHConfig) (*SSH, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port)
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	t := &SSH{cfg: cfg, client: client}
	sttyCmd := fmt.Sprintf("stty -F %s %d raw -echo", cfg.SerialPort, cfg.BaudRate)
	if _, err := t.Execute(ctx, sttyCmd); err != nil {
		client.Close()
		return nil, fmt.Errorf("configuring %s on %s: %w", cfg.SerialPort, cfg.Hostname, err)
	}
	return t, nil
}

func authMethods(cfg SSHConfig) ([]ssh.AuthMethod, error) {
	if cfg.Keyfile != "" {
		key, err := os.ReadFile(cfg.Keyfile)
		if err != nil {
			return nil, fmt.Errorf("reading keyfile: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing keyfile: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
}

// sshProcess wraps one remote session running a streaming command.
type sshProcess struct {
	session *ssh.Session
	out     io.Reader

	mu      sync.Mutex
	stopped bool
}

func (p *sshProcess) Output() io.Reader { return p.out }

func (p *sshProcess) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	_ = p.session.Signal(ssh.SIGKILL)
	return p.session.Close()
}

func (t *SSH) StreamLog(ctx context.Context) (Process, error) {
	return t.StartProcess(ctx, fmt.Sprintf("cat %s", t.cfg.SerialPort))
}

func (t *SSH) WriteCommand(ctx context.Context, command string) error {
	// The console wants CRLF. echo -e expands the escapes on the
	// remote side so the bytes hit the port verbatim.
	_, err := t.Execute(ctx, fmt.Sprintf("echo -e -n '%s\\r\\n' > %s", command, t.cfg.SerialPort))
	return err
}

func (t *SSH) Execute(ctx context.Context, command string) (string, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", fmt.Errorf("ssh transport to %s is closed", t.cfg.Hostname)
	}
	client := t.client
	t.mu.Unlock()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening session on %s: %w", t.cfg.Hostname, err)
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out, err}
	}()
	select {
	case r := <-done:
		out := string(r.out)
		if r.err != nil {
			return out, fmt.Errorf("running %q on %s: %w", command, t.cfg.Hostname, r.err)
		}
		return out, nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	}
}

func (t *SSH) StartProcess(ctx context.Context, command string) (Process, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("ssh transport to %s is closed", t.cfg.Hostname)
	}
	client := t.client
	t.mu.Unlock()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session on %s: %w", t.cfg.Hostname, err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	if err := session.Start(command); err != nil {
		session.Close()
		return nil, fmt.Errorf("starting %q on %s: %w", command, t.cfg.Hostname, err)
	}
	return &sshProcess{session: session, out: io.MultiReader(stdout, stderr)}, nil
}

func (t *SSH) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.client.Close()
}
