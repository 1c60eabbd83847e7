package store

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/onedata/automation-examples/util"
)

// REST reads file content over the Oneprovider REST interface. Only plain
// file ids are accepted as keys. Content is fetched with range requests, so
// archives can be read without downloading them completely.
type REST struct {
	// BaseURL is the scheme and host of the provider, for example
	// "https://provider.example.org".
	BaseURL string
	Token   string       // sent as the x-auth-token header
	Client  *http.Client // nil means util.HTTPClient()
	sizes   *sizeCache
}

var (
	_ Source = &REST{}
)

// NewREST returns a source reading from the Oneprovider at domain using the
// given access token.
func NewREST(domain, token string) *REST {
	return &REST{
		BaseURL: "https://" + domain,
		Token:   token,
		sizes:   newSizeCache(nil),
	}
}

// RESTError is a response from the provider with an unexpected status.
type RESTError struct {
	URL    string
	Status int
}

func (e *RESTError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
}

func (r *REST) contentURL(fileID string) string {
	return r.BaseURL + "/api/v3/oneprovider/data/" + url.PathEscape(fileID) + "/content"
}

// Open returns a ReadAtCloser for the content of the given file.
func (r *REST) Open(key string) (ReadAtCloser, int64, error) {
	fileID, rel, err := SplitKey(key)
	if err != nil {
		return nil, 0, err
	}
	if rel != "" {
		return nil, 0, ErrKeyInvalid
	}
	if r.sizes == nil {
		r.sizes = newSizeCache(nil)
	}
	size, err := r.sizes.lookup(fileID, r.stat)
	if err != nil {
		return nil, 0, err
	}
	target := r.contentURL(fileID)
	fetch := func(start, end int64) (io.ReadCloser, error) {
		resp, err := r.get(target, start, end-1)
		if err != nil {
			return nil, err
		}
		switch resp.StatusCode {
		case http.StatusPartialContent:
			return resp.Body, nil
		case http.StatusRequestedRangeNotSatisfiable:
			resp.Body.Close()
			return nil, io.EOF
		case http.StatusOK:
			// the whole file was sent. skip to the part we want.
			if _, err := io.CopyN(ioutil.Discard, resp.Body, start); err != nil {
				resp.Body.Close()
				return nil, err
			}
			return readCloser{io.LimitReader(resp.Body, end-start), resp.Body}, nil
		}
		resp.Body.Close()
		return nil, &RESTError{URL: target, Status: resp.StatusCode}
	}
	return newPagedReader(fileID, size, fetch), size, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

func (r *REST) get(target string, first, last int64) (*http.Response, error) {
	req, err := http.NewRequest("GET", target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-auth-token", r.Token)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", first, last))
	client := r.Client
	if client == nil {
		client = util.HTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "provider request")
	}
	return resp, nil
}

// stat finds the size of a file by asking for its first byte. The total
// size is in the Content-Range header of the response.
func (r *REST) stat(fileID string) (int64, error) {
	target := r.contentURL(fileID)
	resp, err := r.get(target, 0, 0)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusPartialContent:
		return parseContentRange(resp.Header.Get("Content-Range"))
	case http.StatusOK:
		if resp.ContentLength < 0 {
			return 0, errors.Errorf("GET %s: no content length", target)
		}
		return resp.ContentLength, nil
	case http.StatusRequestedRangeNotSatisfiable:
		// only an empty file has no first byte
		return 0, nil
	case http.StatusNotFound:
		return 0, ErrNotExist
	}
	return 0, &RESTError{URL: target, Status: resp.StatusCode}
}

// parseContentRange returns the total size from a header such as
// "bytes 0-0/1234".
func parseContentRange(s string) (int64, error) {
	i := strings.LastIndex(s, "/")
	if !strings.HasPrefix(s, "bytes ") || i == -1 {
		return 0, errors.Errorf("invalid Content-Range %q", s)
	}
	size, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil || size < 0 {
		return 0, errors.Errorf("invalid Content-Range %q", s)
	}
	return size, nil
}
