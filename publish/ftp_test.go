package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"ChatBridge/core"

	"github.com/jlaffaye/ftp"
)

type fakeConn struct {
	loginErr error
	storErr  error

	user   string
	path   string
	stored []byte
	quits  int
}

func (f *fakeConn) Login(user, _ string) error {
	f.user = user
	return f.loginErr
}

func (f *fakeConn) Stor(path string, r io.Reader) error {
	f.path = path
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.stored = data
	return f.storErr
}

func (f *fakeConn) Quit() error {
	f.quits++
	return nil
}

func newTestPublisher(c *fakeConn, dialErr error) *FTPPublisher {
	conf := &core.Config{}
	conf.FTP.Host = "files.example.com"
	conf.FTP.Port = "21"
	conf.FTP.User = "uploader"
	conf.FTP.Password = "secret"
	conf.FTP.Dir = "/public_html/images"
	conf.FTP.PublicURL = "https://files.example.com/images/"
	p := NewFTPPublisher(conf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.dial = func(_ context.Context, addr string, _ ...ftp.DialOption) (conn, error) {
		if addr != "files.example.com:21" {
			return nil, errors.New("unexpected address " + addr)
		}
		if dialErr != nil {
			return nil, dialErr
		}
		return c, nil
	}
	return p
}

func TestPublishSuccess(t *testing.T) {
	c := &fakeConn{}
	p := newTestPublisher(c, nil)

	url, err := p.Publish(context.Background(), []byte("png"), "user1-1700000000000-acat.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://files.example.com/images/user1-1700000000000-acat.png" {
		t.Errorf("url = %q", url)
	}
	if c.path != "/public_html/images/user1-1700000000000-acat.png" {
		t.Errorf("stored at %q", c.path)
	}
	if string(c.stored) != "png" {
		t.Errorf("stored %q", c.stored)
	}
	if c.user != "uploader" {
		t.Errorf("logged in as %q", c.user)
	}
	if c.quits != 1 {
		t.Errorf("quit called %d times, want 1", c.quits)
	}
}

func TestPublishEscapesURL(t *testing.T) {
	c := &fakeConn{}
	p := newTestPublisher(c, nil)

	url, err := p.Publish(context.Background(), []byte("png"), "alice smith-1700000000000-acat.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://files.example.com/images/alice%20smith-1700000000000-acat.png" {
		t.Errorf("url = %q", url)
	}
	if c.path != "/public_html/images/alice smith-1700000000000-acat.png" {
		t.Errorf("stored at %q", c.path)
	}
}

func TestPublishFailures(t *testing.T) {
	cause := errors.New("550 permission denied")
	tests := []struct {
		name      string
		conn      *fakeConn
		dialErr   error
		wantQuits int
	}{
		{name: "dial", conn: &fakeConn{}, dialErr: cause, wantQuits: 0},
		{name: "login", conn: &fakeConn{loginErr: cause}, wantQuits: 1},
		{name: "store", conn: &fakeConn{storErr: cause}, wantQuits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPublisher(tt.conn, tt.dialErr)
			url, err := p.Publish(context.Background(), []byte("png"), "a.png")
			if url != "" {
				t.Errorf("url = %q, want empty", url)
			}
			var publishErr *core.PublishError
			if !errors.As(err, &publishErr) {
				t.Fatalf("error = %v, want *core.PublishError", err)
			}
			if publishErr.FileName != "a.png" {
				t.Errorf("file name = %q", publishErr.FileName)
			}
			if !errors.Is(err, cause) {
				t.Errorf("cause not wrapped: %v", err)
			}
			if tt.conn.quits != tt.wantQuits {
				t.Errorf("quit called %d times, want %d", tt.conn.quits, tt.wantQuits)
			}
		})
	}
}
