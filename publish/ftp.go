package publish

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	neturl "net/url"
	"path"
	"strings"
	"time"

	"ChatBridge/core"
	"ChatBridge/lib/sl"

	"github.com/jlaffaye/ftp"
)

// conn is the part of *ftp.ServerConn used for one upload
type conn interface {
	Login(user, password string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

type dialFunc func(ctx context.Context, addr string, options ...ftp.DialOption) (conn, error)

func dialFTP(_ context.Context, addr string, options ...ftp.DialOption) (conn, error) {
	c, err := ftp.Dial(addr, options...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FTPPublisher uploads images to the file store behind the public base URL.
// Every upload opens its own connection.
type FTPPublisher struct {
	addr      string
	host      string
	user      string
	password  string
	dir       string
	publicURL string
	insecure  bool
	timeout   time.Duration
	dial      dialFunc
	log       *slog.Logger
}

func NewFTPPublisher(conf *core.Config, log *slog.Logger) *FTPPublisher {
	return &FTPPublisher{
		addr:      net.JoinHostPort(conf.FTP.Host, conf.FTP.Port),
		host:      conf.FTP.Host,
		user:      conf.FTP.User,
		password:  conf.FTP.Password,
		dir:       conf.FTP.Dir,
		publicURL: strings.TrimRight(conf.FTP.PublicURL, "/"),
		insecure:  conf.FTP.Insecure,
		timeout:   conf.FTP.Timeout,
		dial:      dialFTP,
		log:       log.With(sl.Module("ftp")),
	}
}

// Publish stores data as fileName and returns its public URL. The connection
// is closed whether the upload succeeded or not.
func (p *FTPPublisher) Publish(ctx context.Context, data []byte, fileName string) (string, error) {
	options := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if p.timeout > 0 {
		options = append(options, ftp.DialWithTimeout(p.timeout))
	}
	if !p.insecure {
		options = append(options, ftp.DialWithExplicitTLS(&tls.Config{ServerName: p.host}))
	}

	start := time.Now()
	c, err := p.dial(ctx, p.addr, options...)
	if err != nil {
		return "", &core.PublishError{FileName: fileName, Err: err}
	}
	defer func() {
		if err := c.Quit(); err != nil {
			p.log.Debug("closing connection", sl.Err(err))
		}
	}()

	if err = c.Login(p.user, p.password); err != nil {
		p.log.With(slog.String("user", p.user), sl.Secret(p.password)).Warn("ftp login failed")
		return "", &core.PublishError{FileName: fileName, Err: err}
	}
	remote := path.Join(p.dir, fileName)
	if err = c.Stor(remote, bytes.NewReader(data)); err != nil {
		return "", &core.PublishError{FileName: fileName, Err: err}
	}

	url := p.publicURL + "/" + neturl.PathEscape(fileName)
	p.log.With(
		slog.String("path", remote),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	).Info("image uploaded")
	return url, nil
}
