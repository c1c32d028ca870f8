package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ClientHub/internal/pkg/config"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveEnvelopeUploadsPayload(t *testing.T) {
	fake := &fakeS3{}
	a := newS3Archive(fake, "signatures", "/envelopes/", nil)
	a.now = func() time.Time { return time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC) }

	payload := []byte(`{"envelopeId":"abc/123","status":"completed"}`)
	uri, err := a.ArchiveEnvelope(context.Background(), "docusign", "abc/123", payload)
	require.NoError(t, err)

	key := aws.ToString(fake.input.Key)
	assert.Regexp(t, `^envelopes/docusign/2026/04/abc_123-[0-9a-f]{12}\.json$`, key)
	assert.Equal(t, "s3://signatures/"+key, uri)
	assert.Equal(t, "signatures", aws.ToString(fake.input.Bucket))
	assert.Equal(t, payload, fake.body)
	assert.Equal(t, "abc/123", fake.input.Metadata["envelope-id"])
}

func TestArchiveEnvelopeReportsUploadError(t *testing.T) {
	a := newS3Archive(&fakeS3{err: errors.New("denied")}, "b", "", nil)
	_, err := a.ArchiveEnvelope(context.Background(), "docusign", "e", []byte(`{}`))
	assert.ErrorContains(t, err, "denied")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(config.ArchiveConfig{}))
	assert.Error(t, Validate(config.ArchiveConfig{Enabled: true, Bucket: "b"}))
	assert.NoError(t, Validate(config.ArchiveConfig{Enabled: true, Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}))
}
