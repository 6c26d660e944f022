// Package storage resolves athan track names to something the audio facility
// can load: a local file path or a (presigned) Spaces URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/rs/zerolog/log"
)

// ErrTrackNotFound is returned when a track does not exist in local storage.
var ErrTrackNotFound = errors.New("athan track not found")

type Resolver interface {
	Resolve(ctx context.Context, track string) (string, error)
}

// LocalResolver serves tracks from a directory. With a base URL it returns
// links under it instead of file paths, for devices that fetch over HTTP.
type LocalResolver struct {
	mediaDir string
	baseURL  string
}

type SpacesResolver struct {
	client *s3.S3
	bucket string
	cdnURL string
	expiry time.Duration
}

var (
	_ Resolver = (*LocalResolver)(nil)
	_ Resolver = (*SpacesResolver)(nil)
)

func NewLocalResolver(mediaDir, baseURL string) *LocalResolver {
	return &LocalResolver{mediaDir: mediaDir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func NewSpacesResolver(endpoint, region, bucket, cdnURL, accessKey, secretKey string) (*SpacesResolver, error) {
	config := &aws.Config{
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		Endpoint:         aws.String(endpoint),
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(false),
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SpacesResolver{
		client: s3.New(sess),
		bucket: bucket,
		cdnURL: cdnURL,
		expiry: 15 * time.Minute,
	}, nil
}

var trackNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+\.[a-z0-9]+$`)

// validTrackName rejects anything that could escape the media directory.
func validTrackName(track string) bool {
	return trackNamePattern.MatchString(track)
}

func (l *LocalResolver) Resolve(_ context.Context, track string) (string, error) {
	if !validTrackName(track) {
		return "", fmt.Errorf("invalid track name %q", track)
	}
	path := filepath.Join(l.mediaDir, track)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", track, ErrTrackNotFound)
		}
		return "", fmt.Errorf("stat track: %w", err)
	}
	if l.baseURL != "" {
		return l.baseURL + "/" + track, nil
	}
	return path, nil
}

// Resolve returns the CDN URL when one is configured, otherwise a presigned
// GET for the object under athan/.
func (s *SpacesResolver) Resolve(_ context.Context, track string) (string, error) {
	if !validTrackName(track) {
		return "", fmt.Errorf("invalid track name %q", track)
	}
	key := fmt.Sprintf("athan/%s", track)

	if s.cdnURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(s.cdnURL, "/"), key), nil
	}

	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket:              aws.String(s.bucket),
		Key:                 aws.String(key),
		ResponseContentType: aws.String(getContentType(track)),
	})
	url, err := req.Presign(s.expiry)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to presign athan track")
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return url, nil
}

func getContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".aac":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".caf":
		return "audio/x-caf"
	default:
		return "application/octet-stream"
	}
}
