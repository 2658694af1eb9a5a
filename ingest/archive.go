package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/ExPixel/mercury/lalog"
)

// Archiver mirrors a message's compressed body to S3. Uploads are best
// effort: a failure is logged and otherwise ignored, never retried, and
// never allowed to block the ingest pipeline beyond the upload call
// itself.
type Archiver struct {
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
	logger   *lalog.Logger
}

// NewArchiver builds an Archiver for the given bucket/prefix using the
// default AWS credential chain and region discovery.
func NewArchiver(bucket, prefix string, logger *lalog.Logger) (*Archiver, error) {
	sess, err := session.NewSession(&aws.Config{})
	if err != nil {
		return nil, fmt.Errorf("ingest: creating AWS session: %w", err)
	}
	if logger == nil {
		logger = &lalog.Logger{ComponentName: "archive"}
	}
	return &Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: s3manager.NewUploaderWithClient(s3.New(sess)),
		logger:   logger,
	}, nil
}

// Upload mirrors one message's compressed body under "<prefix>/<id>.mail.gz".
func (a *Archiver) Upload(id MessageID, body io.Reader) {
	key := fmt.Sprintf("%s/%d.mail.gz", a.prefix, id)
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	a.logger.Info(a.bucket, err, "archived mail %d to %q in %s", id, key, time.Since(start))
}
