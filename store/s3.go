package store

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	raven "github.com/getsentry/raven-go"
)

// A S3 store reads files from an S3 gateway, such as the one a Oneprovider
// can expose for a space. Keys are the same as for the other stores, and are
// prefixed with Prefix to give the object key.
// Do not change Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc      *s3.S3
	uploader *s3manager.Uploader
	Bucket   string
	Prefix   string
	sizes    *sizeCache
}

var (
	_ Store = &S3{}
)

// NewS3 creates a new S3 store. It will use the given bucket and will prepend
// prefix to all keys. For example if prefix were "space1/" then an
// Open("hello") would look for the key "space1/hello" in the bucket. The
// authorization method and credentials in the session are used for all
// accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	return &S3{
		Bucket:   bucket,
		Prefix:   prefix,
		svc:      s3.New(awsSession),
		uploader: s3manager.NewUploader(awsSession),
		sizes:    newSizeCache(nil),
	}
}

// NewS3Session returns a session for the given endpoint and region. An empty
// endpoint means AWS itself. Credentials are taken from the environment.
func NewS3Session(endpoint, region string) (*session.Session, error) {
	cfg := &aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	return session.NewSession(cfg)
}

// Open will return a ReadAtCloser to get the content for the given key. Data
// is paged in from S3 as needed, and up to 50 MB or so is cached at a time.
func (s *S3) Open(key string) (ReadAtCloser, int64, error) {
	if err := isKeyValid(key); err != nil {
		return nil, 0, err
	}
	// check that the key exists, and if so get its size
	size, err := s.sizes.lookup(key, s.stat)
	if err != nil {
		return nil, 0, err
	}
	fullkey := s.Prefix + key
	fetch := func(start, end int64) (io.ReadCloser, error) {
		output, err := s.svc.GetObject(&s3.GetObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(fullkey),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)),
		})
		if err != nil {
			// if we get an invalid range error then we have gone too far
			e, ok := err.(awserr.RequestFailure)
			if ok && e.StatusCode() == http.StatusRequestedRangeNotSatisfiable {
				err = io.EOF
			}
			return nil, err
		}
		return output.Body, nil
	}
	return newPagedReader(fullkey, size, fetch), size, nil
}

// Create will return a WriteCloser to upload content to the given key. The
// data is streamed to the uploader, which uses the multipart interface for
// large objects. Close waits for the upload to finish.
func (s *S3) Create(key string) (io.WriteCloser, error) {
	if err := isKeyValid(key); err != nil {
		return nil, err
	}
	_, err := s.sizes.lookup(key, s.stat)
	if err == nil {
		return nil, ErrKeyExists
	}
	if err != ErrNotExist {
		return nil, err
	}
	s.sizes.forget(key)
	pr, pw := io.Pipe()
	wc := &s3WriteCloser{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := s.uploader.Upload(&s3manager.UploadInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(s.Prefix + key),
			Body:   pr,
		})
		if err != nil {
			log.Println("S3 Upload:", s.Prefix, key, err)
			raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
		}
		// unblock any writer if the upload stopped early
		pr.CloseWithError(err)
		wc.done <- err
	}()
	return wc, nil
}

// s3WriteCloser feeds an upload running in another goroutine.
type s3WriteCloser struct {
	pw   *io.PipeWriter
	done chan error
}

func (wc *s3WriteCloser) Write(p []byte) (int, error) {
	return wc.pw.Write(p)
}

func (wc *s3WriteCloser) Close() error {
	wc.pw.Close()
	return <-wc.done
}

// Delete will remove the given key from the store. The store's Prefix is
// prepended first. It is not an error to delete something that doesn't exist.
func (s *S3) Delete(key string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		log.Println("S3 Delete:", s.Prefix, key, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
	} else {
		s.sizes.missing(key)
	}
	return err
}

// stat implements the actual HEAD request to s3. Returns either an error
// or the size. Use it through the size cache.
func (s *S3) stat(key string) (int64, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	}
	info, err := s.svc.HeadObject(input)
	if err != nil {
		e, ok := err.(awserr.RequestFailure)
		if ok && e.StatusCode() == http.StatusNotFound {
			return 0, ErrNotExist
		}
		return 0, err
	}
	return aws.Int64Value(info.ContentLength), nil
}
