package docstore

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/model"
	"github.com/sells-group/intake-cli/internal/resilience"
)

// FTPOptions configures the FTP document store.
type FTPOptions struct {
	// URL is the base ftp:// URL of the deal room, e.g. ftp://host:21/deals/acme.
	URL      string
	User     string
	Password string
	Timeout  time.Duration
	// Retry and Breaker guard each fetch. Zero values get sensible defaults.
	Retry   resilience.RetryConfig
	Breaker *resilience.CircuitBreaker
}

// FTPStore fetches documents from a broker's FTP drop. Each fetch opens a
// fresh connection; deal rooms are small enough that pooling is not worth it.
type FTPStore struct {
	host    string
	base    string
	opts    FTPOptions
	breaker *resilience.CircuitBreaker
}

// NewFTPStore creates an FTPStore for the given base URL.
func NewFTPStore(opts FTPOptions) (*FTPStore, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}

	host, base, err := parseFTPURL(opts.URL)
	if err != nil {
		return nil, err
	}
	return &FTPStore{host: host, base: base, opts: opts, breaker: breaker}, nil
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, p string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "docstore: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("docstore: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	return host, u.Path, nil
}

func (s *FTPStore) GetDocument(ctx context.Context, ref model.DocumentRef) ([]byte, error) {
	name := ref.URI
	if name == "" {
		name = ref.Filename
	}
	if name == "" {
		return nil, eris.Wrapf(ErrNotFound, "document %s has no uri or filename", ref.ID)
	}
	remote := path.Join(s.base, name)

	zap.L().Debug("docstore: ftp fetch",
		zap.String("host", s.host),
		zap.String("path", remote),
	)

	retry := s.opts.Retry
	retry.OnRetry = resilience.RetryLogger("ftp", "fetch")

	return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) ([]byte, error) {
			return s.fetch(ctx, ref.ID, remote)
		})
	})
}

// fetch performs one connect-login-retrieve round trip.
func (s *FTPStore) fetch(ctx context.Context, docID, remote string) ([]byte, error) {
	conn, err := ftp.Dial(s.host, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "docstore: ftp dial")
	}
	defer conn.Quit()

	if err := conn.Login(s.opts.User, s.opts.Password); err != nil {
		return nil, eris.Wrap(err, "docstore: ftp login")
	}

	resp, err := conn.Retr(remote)
	if err != nil {
		// 4yz replies are transient (server busy, file locked); keep the reply
		// in the chain so the retry layer can classify it. Everything else
		// means the document is not there.
		var reply *textproto.Error
		if errors.As(err, &reply) && reply.Code >= 400 && reply.Code < 500 {
			return nil, eris.Wrapf(err, "docstore: ftp retr %s", remote)
		}
		return nil, eris.Wrapf(ErrNotFound, "document %s (%s): %v", docID, remote, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrap(err, "docstore: ftp read")
	}
	return data, nil
}
