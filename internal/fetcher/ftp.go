package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/resilience"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration
	Retry   resilience.Policy
}

// FTPFetcher downloads files over anonymous FTP.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}
	return &FTPFetcher{opts: opts}
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" || path == "/" {
		return "", "", eris.New("empty path in ftp url")
	}

	return host, path, nil
}

// DownloadToFile retrieves ftpURL into path. Returns bytes written.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL string, path string) (int64, error) {
	host, remote, err := parseFTPURL(ftpURL)
	if err != nil {
		return 0, err
	}

	return resilience.Do(ctx, f.opts.Retry, func(ctx context.Context) (int64, error) {
		zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", remote))

		conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
		if err != nil {
			return 0, resilience.NewTransientError(eris.Wrap(err, "ftp dial"), 0)
		}
		defer conn.Quit() //nolint:errcheck

		if err := conn.Login("anonymous", "anonymous@"); err != nil {
			return 0, eris.Wrap(err, "ftp login")
		}

		resp, err := conn.Retr(remote)
		if err != nil {
			return 0, eris.Wrap(err, "ftp retrieve")
		}
		defer resp.Close() //nolint:errcheck

		file, err := os.Create(path)
		if err != nil {
			return 0, eris.Wrap(err, "create file")
		}
		defer file.Close() //nolint:errcheck

		n, err := io.Copy(file, resp)
		if err != nil {
			return n, eris.Wrap(err, "write file")
		}
		return n, nil
	})
}
