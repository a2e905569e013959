package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHExecutor runs steps on a remote agent machine over SSH. The working
// directory is entered with a cd prefix, matching how an interactive agent
// session would run the step.
type SSHExecutor struct {
	client *ssh.Client
}

func NewSSHExecutor(username, hostname string, privateKey []byte) (*SSHExecutor, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("err parsing ssh private key: %w", err)
	}
	auth := ssh.PublicKeys(signer)
	cc := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	split := strings.Split(hostname, ":")
	if len(split) == 1 {
		hostname += ":22"
	}
	client, err := ssh.Dial("tcp", hostname, cc)
	if err != nil {
		return nil, fmt.Errorf("err dialing ssh: %w", err)
	}

	return &SSHExecutor{client: client}, nil
}

// Client exposes the underlying connection for SFTP artifact downloads.
func (e *SSHExecutor) Client() *ssh.Client {
	return e.client
}

func (e *SSHExecutor) Close() error {
	return e.client.Close()
}

func (e *SSHExecutor) Run(
	ctx context.Context,
	script, dir string,
	timeout time.Duration,
) (Result, error) {
	sess, err := e.client.NewSession()
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer sess.Close()

	buf := new(bytes.Buffer)
	sess.Stdout = buf
	sess.Stderr = buf

	cmd := fmt.Sprintf("cd %s && %s", dir, script)

	tctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- sess.Run(cmd)
	}()

	select {
	case <-tctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return Result{ExitCode: -1, Output: buf.String()}, &TimeoutError{
			Script:  script,
			Seconds: int(timeout.Seconds()),
		}
	case err := <-doneCh:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return Result{ExitCode: exitErr.ExitStatus(), Output: buf.String()}, nil
			}
			return Result{ExitCode: -1, Output: buf.String()}, err
		}
		return Result{ExitCode: 0, Output: buf.String()}, nil
	}
}
