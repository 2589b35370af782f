package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/user"
	"path/filepath"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/eniac111/converge/internal/logger"
)

// SSHDialer opens SSH sessions using password, explicit key, the default
// ~/.ssh/id_rsa, and the SSH agent, in that order of preference.
type SSHDialer struct {
	// HostKeyCallback defaults to ssh.InsecureIgnoreHostKey. Override it
	// when host keys are pinned.
	HostKeyCallback ssh.HostKeyCallback
}

func (d *SSHDialer) Dial(ctx context.Context, addr string, cfg ConnConfig) (Session, error) {
	authMethods, err := authMethods(cfg)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}

	hostKeyCallback := d.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	target := fmt.Sprintf("%s:%d", addr, port)

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, target, clientCfg)
	if err != nil {
		conn.Close()
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	return &sshSession{client: ssh.NewClient(sshConn, chans, reqs), addr: addr}, nil
}

func authMethods(cfg ConnConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}

	if cfg.KeyPath != "" {
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	// Fall back to the default key when no explicit key is configured.
	if cfg.KeyPath == "" {
		if usr, err := user.Current(); err == nil {
			defaultKeyPath := filepath.Join(usr.HomeDir, ".ssh", "id_rsa")
			if key, err := os.ReadFile(defaultKeyPath); err == nil {
				if signer, err := ssh.ParsePrivateKey(key); err == nil {
					methods = append(methods, ssh.PublicKeys(signer))
					logger.L().Debug("using default SSH key", zap.String("path", defaultKeyPath))
				}
			}
		}
	}

	// The SSH agent is always worth trying when its socket is present.
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			logger.L().Debug("using SSH agent")
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no authentication methods available")
	}
	return methods, nil
}

type sshSession struct {
	client *ssh.Client
	addr   string
}

func (s *sshSession) Run(ctx context.Context, cmd string) (ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecResult{}, &TransportError{Op: "run", Err: err}
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return ExecResult{}, &TransportError{Op: "session", Err: err}
	}
	defer sess.Close()

	var outBuf, errBuf bytes.Buffer
	sess.Stdout = &outBuf
	sess.Stderr = &errBuf

	res := ExecResult{}
	if err := sess.Run(cmd); err != nil {
		exitErr, ok := err.(*ssh.ExitError)
		if !ok {
			return ExecResult{}, &TransportError{Op: "run", Err: err}
		}
		res.ExitCode = exitErr.ExitStatus()
	}
	res.Stdout = outBuf.String()
	res.Stderr = errBuf.String()
	return res, nil
}

func (s *sshSession) Upload(ctx context.Context, src io.Reader, remotePath string, mode fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "upload", Err: err}
	}

	sftpClient, err := sftp.NewClient(s.client)
	if err != nil {
		return &TransportError{Op: "sftp", Err: err}
	}
	defer sftpClient.Close()

	dst, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: err}
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return &TransportError{Op: "upload", Err: err}
	}
	if mode != 0 {
		if err := sftpClient.Chmod(remotePath, mode); err != nil {
			return &TransportError{Op: "chmod", Err: err}
		}
	}
	return nil
}

func (s *sshSession) Close() error {
	return s.client.Close()
}
